package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const restPrefix = "/rest/v1/"

// Row is one record returned by PostgREST
type Row map[string]interface{}

// ID returns the row's "id" column, if present
func (r Row) ID() (interface{}, bool) {
	id, ok := r["id"]
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}

// FormatID renders a row id as PostgREST expects it in a filter. Float ids
// are written without an exponent.
func FormatID(id interface{}) string {
	switch v := id.(type) {
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(id)
	}
}

func tablePath(table string) string {
	return restPrefix + url.PathEscape(table)
}

// SelectOne reads at most one row from table
func (c *Client) SelectOne(ctx context.Context, table string) ([]Row, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("limit", "1")

	var rows []Row
	err := c.doJSON(ctx, request{
		op:     "db.select",
		method: http.MethodGet,
		path:   tablePath(table),
		query:  query,
	}, &rows)
	return rows, err
}

// FindOne reads at most one row from table whose column equals value
func (c *Client) FindOne(ctx context.Context, table, column, value string) ([]Row, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set(column, "eq."+value)
	query.Set("limit", "1")

	var rows []Row
	err := c.doJSON(ctx, request{
		op:     "db.find",
		method: http.MethodGet,
		path:   tablePath(table),
		query:  query,
	}, &rows)
	return rows, err
}

// Insert writes row into table and returns the stored representation
func (c *Client) Insert(ctx context.Context, table string, row interface{}) ([]Row, error) {
	var rows []Row
	err := c.doJSON(ctx, request{
		op:      "db.insert",
		method:  http.MethodPost,
		path:    tablePath(table),
		body:    row,
		headers: map[string]string{"Prefer": "return=representation"},
	}, &rows)
	return rows, err
}

// DeleteByID removes the rows of table whose id equals id
func (c *Client) DeleteByID(ctx context.Context, table string, id interface{}) error {
	query := url.Values{}
	query.Set("id", "eq."+FormatID(id))

	return c.doJSON(ctx, request{
		op:      "db.delete",
		method:  http.MethodDelete,
		path:    tablePath(table),
		query:   query,
		headers: map[string]string{"Prefer": "return=minimal"},
	}, nil)
}

// Count returns the exact number of rows in table
func (c *Client) Count(ctx context.Context, table string) (int64, error) {
	query := url.Values{}
	query.Set("select", "*")

	resp, err := c.do(ctx, request{
		op:      "db.count",
		method:  http.MethodHead,
		path:    tablePath(table),
		query:   query,
		headers: map[string]string{"Prefer": "count=exact"},
	})
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	return parseContentRange(resp.Header.Get("Content-Range"))
}

// parseContentRange extracts the total from "0-24/3573" or "*/0"
func parseContentRange(header string) (int64, error) {
	_, total, ok := strings.Cut(header, "/")
	if !ok || total == "" || total == "*" {
		return 0, fmt.Errorf("db.count: no total in Content-Range %q", header)
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("db.count: invalid Content-Range %q: %w", header, err)
	}
	return n, nil
}
