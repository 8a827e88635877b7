package smoke

import (
	"context"
	"fmt"
	"time"

	"github.com/mazurov/supabase-keepalive/internal/realtime"
	"github.com/mazurov/supabase-keepalive/internal/storage"
	"github.com/mazurov/supabase-keepalive/internal/supabase"
)

// Check names
const (
	CheckDBRead         = "db.read"
	CheckDBInsert       = "db.insert"
	CheckDBDelete       = "db.delete"
	CheckDBCount        = "db.count"
	CheckStorageBuckets = "storage.buckets"
	CheckStorageObjects = "storage.objects"
	CheckRealtimeListen = "realtime.listen"
	CheckSQLCount       = "sql.count"
	CheckS3Buckets      = "s3.buckets"
)

// Surfaces
const (
	SurfaceDatabase = "database"
	SurfaceStorage  = "storage"
	SurfaceRealtime = "realtime"
	SurfaceSQL      = "sql"
	SurfaceS3       = "s3"
)

// MarkerName is the name column of the row inserted by the insert check
const MarkerName = "keep_alive"

// Database is the REST table surface used by the database checks
type Database interface {
	SelectOne(ctx context.Context, table string) ([]supabase.Row, error)
	Insert(ctx context.Context, table string, row interface{}) ([]supabase.Row, error)
	DeleteByID(ctx context.Context, table string, id interface{}) error
	Count(ctx context.Context, table string) (int64, error)
}

// Storage is the Storage REST surface used by the storage checks
type Storage interface {
	ListBuckets(ctx context.Context) ([]supabase.Bucket, error)
	ListObjects(ctx context.Context, bucket string, limit int) ([]supabase.Object, error)
}

// Listener subscribes to a realtime channel for a bounded window
type Listener func(ctx context.Context) (realtime.ListenResult, error)

// Deps wires the standard checks to their surfaces
type Deps struct {
	Database    Database
	Storage     Storage
	Listen      Listener
	Table       string
	Marker      string // value column of the inserted row, unique per run
	ObjectLimit int
	// ListenTimeout bounds the realtime check; it must exceed the listen window
	ListenTimeout time.Duration
}

// Marker is the row inserted by the insert check
type Marker struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Standard returns the REST, Storage and Realtime checks in report order.
// The delete check removes the row the insert check wrote, and the object
// listing uses the first bucket the bucket listing found; each is skipped
// when its predecessor produced nothing.
func Standard(deps Deps) []Check {
	var (
		insertedID  interface{}
		firstBucket string
	)

	return []Check{
		{
			Name:    CheckDBRead,
			Surface: SurfaceDatabase,
			Run: func(ctx context.Context) (string, error) {
				rows, err := deps.Database.SelectOne(ctx, deps.Table)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("read %d row(s) from %s", len(rows), deps.Table), nil
			},
		},
		{
			Name:    CheckDBInsert,
			Surface: SurfaceDatabase,
			Run: func(ctx context.Context) (string, error) {
				rows, err := deps.Database.Insert(ctx, deps.Table, Marker{Name: MarkerName, Value: deps.Marker})
				if err != nil {
					return "", err
				}
				if len(rows) == 0 {
					return fmt.Sprintf("inserted marker %s into %s (no representation returned)", deps.Marker, deps.Table), nil
				}
				if id, ok := rows[0].ID(); ok {
					insertedID = id
					return fmt.Sprintf("inserted marker %s into %s with id %s", deps.Marker, deps.Table, supabase.FormatID(id)), nil
				}
				return fmt.Sprintf("inserted marker %s into %s (row has no id)", deps.Marker, deps.Table), nil
			},
		},
		{
			Name:    CheckDBDelete,
			Surface: SurfaceDatabase,
			Run: func(ctx context.Context) (string, error) {
				if insertedID == nil {
					return "", Skip("no inserted row id to delete")
				}
				if err := deps.Database.DeleteByID(ctx, deps.Table, insertedID); err != nil {
					return "", err
				}
				return fmt.Sprintf("deleted row %s from %s", supabase.FormatID(insertedID), deps.Table), nil
			},
		},
		{
			Name:    CheckDBCount,
			Surface: SurfaceDatabase,
			Run: func(ctx context.Context) (string, error) {
				n, err := deps.Database.Count(ctx, deps.Table)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%s has %d row(s)", deps.Table, n), nil
			},
		},
		{
			Name:    CheckStorageBuckets,
			Surface: SurfaceStorage,
			Run: func(ctx context.Context) (string, error) {
				buckets, err := deps.Storage.ListBuckets(ctx)
				if err != nil {
					return "", err
				}
				if len(buckets) > 0 {
					firstBucket = buckets[0].Name
				}
				return fmt.Sprintf("%d bucket(s)", len(buckets)), nil
			},
		},
		{
			Name:    CheckStorageObjects,
			Surface: SurfaceStorage,
			Run: func(ctx context.Context) (string, error) {
				if firstBucket == "" {
					return "", Skip("no bucket to list")
				}
				objects, err := deps.Storage.ListObjects(ctx, firstBucket, deps.ObjectLimit)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d object(s) in %s", len(objects), firstBucket), nil
			},
		},
		{
			Name:    CheckRealtimeListen,
			Surface: SurfaceRealtime,
			Timeout: deps.ListenTimeout,
			Run: func(ctx context.Context) (string, error) {
				res, err := deps.Listen(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("subscribed to %s for %s, %d event(s)", res.Topic, res.Waited.Round(time.Millisecond), res.Events), nil
			},
		},
	}
}

// SQLProbe is the direct database connection used by SQLCheck
type SQLProbe interface {
	ServerVersion(ctx context.Context) (string, error)
	Count(ctx context.Context, table string) (int64, error)
}

// SQLCheck counts table rows over a direct Postgres connection
func SQLCheck(probe SQLProbe, table string) Check {
	return Check{
		Name:    CheckSQLCount,
		Surface: SurfaceSQL,
		Run: func(ctx context.Context) (string, error) {
			n, err := probe.Count(ctx, table)
			if err != nil {
				return "", err
			}
			version, err := probe.ServerVersion(ctx)
			if err != nil {
				return fmt.Sprintf("%s has %d row(s)", table, n), nil
			}
			return fmt.Sprintf("%s has %d row(s) (%s)", table, n, shorten(version, 40)), nil
		},
	}
}

// S3Lister is the S3-protocol client used by S3Check
type S3Lister interface {
	ListBuckets(ctx context.Context) ([]storage.Bucket, error)
	ListObjects(ctx context.Context, bucket string, limit int) ([]storage.Object, error)
}

// S3Check lists buckets, then objects of the first bucket, over the S3 protocol
func S3Check(client S3Lister, limit int) Check {
	return Check{
		Name:    CheckS3Buckets,
		Surface: SurfaceS3,
		Run: func(ctx context.Context) (string, error) {
			buckets, err := client.ListBuckets(ctx)
			if err != nil {
				return "", err
			}
			if len(buckets) == 0 {
				return "0 bucket(s)", nil
			}
			objects, err := client.ListObjects(ctx, buckets[0].Name, limit)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d bucket(s), %d object(s) in %s", len(buckets), len(objects), buckets[0].Name), nil
		},
	}
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
