package kvstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giygas/pharmaprice-api/config"
)

// exerciseStore runs the behaviour every backend must share
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "history")
	require.NoError(t, err)
	assert.False(t, found, "unwritten key must report not found")

	require.NoError(t, s.Set(ctx, "history", `[{"medicationName":"Ibuprofen"}]`))
	require.NoError(t, s.Set(ctx, "basket", `[]`))

	v, found, err := s.Get(ctx, "history")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[{"medicationName":"Ibuprofen"}]`, v)

	require.NoError(t, s.Set(ctx, "history", `[]`))
	v, _, err = s.Get(ctx, "history")
	require.NoError(t, err)
	assert.Equal(t, `[]`, v)

	v, found, err = s.Get(ctx, "basket")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[]`, v)

	assert.NoError(t, s.Ping(ctx))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.Equal(t, "memory", s.Backend())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "collections.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	v, found, err := reopened.Get(context.Background(), "history")
	require.NoError(t, err)
	assert.True(t, found, "values survive a restart")
	assert.Equal(t, `[]`, v)

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".collections-*.tmp"))
	assert.Empty(t, leftovers)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collections.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func TestFileStoreEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collections.json")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, found, err := s.Get(context.Background(), "basket")
	require.NoError(t, err)
	assert.False(t, found)
}

// fakeBucket is a minimal path-style S3 endpoint
type fakeBucket struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]string
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == f.bucket && r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	key, ok := strings.CutPrefix(path, f.bucket+"/")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = string(body)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		v, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, v)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestObjectStore(t *testing.T) {
	fake := &fakeBucket{bucket: "collections", objects: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := NewObjectStore(context.Background(), ObjectStoreConfig{
		Endpoint:  srv.URL,
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "collections",
		Prefix:    "user-1/",
	})
	require.NoError(t, err)
	exerciseStore(t, s)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Contains(t, fake.objects, "user-1/history.json")
	assert.Contains(t, fake.objects, "user-1/basket.json")
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	s, err := NewPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.pool.Exec(context.Background(), `DELETE FROM kv_store WHERE key IN ('history', 'basket')`)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, &config.Config{StorageBackend: config.StorageMemory})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Backend())

	s, err = Open(ctx, &config.Config{
		StorageBackend: config.StorageFile,
		StoragePath:    filepath.Join(t.TempDir(), "c.json"),
	})
	require.NoError(t, err)
	assert.Equal(t, "file", s.Backend())

	_, err = Open(ctx, &config.Config{StorageBackend: "redis"})
	assert.Error(t, err)
}
