package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	gormlogger "gorm.io/gorm/logger"
)

func openMemory(t *testing.T, name string) *Probe {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	p, err := Open(context.Background(), sqlite.Open("file:"+name+"?mode=memory&cache=shared"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProbe_Count(t *testing.T) {
	p := openMemory(t, "count")
	require.NoError(t, p.db.Exec("CREATE TABLE keep_alive (id INTEGER PRIMARY KEY, name TEXT, value TEXT)").Error)
	require.NoError(t, p.db.Exec("INSERT INTO keep_alive (name, value) VALUES ('keep_alive', 'a'), ('keep_alive', 'b')").Error)

	n, err := p.Count(context.Background(), "keep_alive")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestProbe_CountMissingTable(t *testing.T) {
	p := openMemory(t, "missing")

	_, err := p.Count(context.Background(), "does_not_exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count does_not_exist")
}

func TestProbe_CountRejectsInvalidName(t *testing.T) {
	p := openMemory(t, "invalid")

	for _, name := range []string{"", "users; DROP TABLE users", "a.b.c", "1users"} {
		_, err := p.Count(context.Background(), name)
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), "invalid table name")
	}
}

func TestProbe_ServerVersion(t *testing.T) {
	p := openMemory(t, "version")

	version, err := p.ServerVersion(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(version, "3."), version)
}

func TestProbe_PingAfterClose(t *testing.T) {
	p := openMemory(t, "closed")
	require.NoError(t, p.Close())

	err := p.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database ping failed")
}

func TestOpenPostgres_EmptyURL(t *testing.T) {
	_, err := OpenPostgres(context.Background(), "", slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestGormLogger_Trace(t *testing.T) {
	var buf bytes.Buffer
	l := newGormLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Contains(t, buf.String(), "SQL statement")
	assert.Contains(t, buf.String(), "SELECT 1")

	buf.Reset()
	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT x", 0 }, errors.New("no such column"))
	assert.Contains(t, buf.String(), "SQL statement failed")
	assert.Contains(t, buf.String(), "no such column")

	buf.Reset()
	l.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 2", 1 }, nil)
	assert.Empty(t, buf.String())
}
