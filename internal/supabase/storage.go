package supabase

import (
	"context"
	"net/http"
	"net/url"
)

const storagePrefix = "/storage/v1"

// Bucket is a Storage bucket
type Bucket struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Public    bool   `json:"public"`
	CreatedAt string `json:"created_at"`
}

// Object is an entry returned by the Storage list endpoint. Folders have a nil ID.
type Object struct {
	Name      string                 `json:"name"`
	ID        *string                `json:"id"`
	UpdatedAt string                 `json:"updated_at"`
	Metadata  map[string]interface{} `json:"metadata"`
}

type listObjectsRequest struct {
	Prefix string     `json:"prefix"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
	SortBy objectSort `json:"sortBy"`
}

type objectSort struct {
	Column string `json:"column"`
	Order  string `json:"order"`
}

// ListBuckets returns every bucket visible to the current token
func (c *Client) ListBuckets(ctx context.Context) ([]Bucket, error) {
	var buckets []Bucket
	err := c.doJSON(ctx, request{
		op:     "storage.list_buckets",
		method: http.MethodGet,
		path:   storagePrefix + "/bucket",
	}, &buckets)
	return buckets, err
}

// ListObjects returns up to limit entries at the root of bucket
func (c *Client) ListObjects(ctx context.Context, bucket string, limit int) ([]Object, error) {
	var objects []Object
	err := c.doJSON(ctx, request{
		op:     "storage.list_objects",
		method: http.MethodPost,
		path:   storagePrefix + "/object/list/" + url.PathEscape(bucket),
		body: listObjectsRequest{
			Limit:  limit,
			SortBy: objectSort{Column: "name", Order: "asc"},
		},
	}, &objects)
	return objects, err
}
