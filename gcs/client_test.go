package gcs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	adst "go.airbusds-geo.com/gcp/storage"
)

// fakeGCS serves the subset of the json api used by Client.
type fakeGCS struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]bool
	uploads []string
	status  int
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": f.status, "message": http.StatusText(f.status)},
		})
		return
	}
	if strings.HasPrefix(r.URL.Path, "/upload/") {
		body, _ := io.ReadAll(r.Body)
		f.uploads = append(f.uploads, string(body))
		_ = json.NewEncoder(w).Encode(map[string]string{"bucket": "bucket", "name": "out.tif"})
		return
	}
	b, o, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/storage/v1/b/"), "/o/")
	found := f.buckets[b]
	resp := map[string]string{"name": b}
	if o != "" {
		found = f.objects[b+"/"+o]
		resp = map[string]string{"bucket": b, "name": o}
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": 404, "message": "Not Found"},
		})
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func testClient(t *testing.T, f *fakeGCS) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	t.Setenv("STORAGE_EMULATOR_HOST", strings.TrimPrefix(srv.URL, "http://"))
	ctx := context.Background()
	stcl, err := storage.NewClient(ctx)
	require.NoError(t, err)
	adstcl, err := adst.New(ctx, adst.WithStorageClient(stcl))
	require.NoError(t, err)
	return &Client{stcl: stcl, adstcl: adstcl}
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	c := testClient(t, &fakeGCS{
		buckets: map[string]bool{"bucket": true},
		objects: map[string]bool{"bucket/cogs/in.tif": true},
	})

	ok, err := c.Exists(ctx, "gs://bucket/cogs/in.tif")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Exists(ctx, "gs://bucket/cogs/missing.tif")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.DirExists(ctx, "gs://bucket/cogs")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.DirExists(ctx, "gs://other/cogs")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = c.DirExists(ctx, "/local/dir")
	assert.Error(t, err)
}

func TestExistsForbidden(t *testing.T) {
	ctx := context.Background()
	c := testClient(t, &fakeGCS{status: http.StatusForbidden})
	_, err := c.Exists(ctx, "gs://bucket/in.tif")
	assert.Error(t, err)
	_, err = c.DirExists(ctx, "gs://bucket/cogs")
	assert.Error(t, err)
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "out.tif")
	require.NoError(t, os.WriteFile(src, []byte("cog content"), 0o644))

	f := &fakeGCS{}
	c := testClient(t, f)
	require.NoError(t, c.Upload(ctx, "gs://bucket/out.tif", src))
	require.Len(t, f.uploads, 1)
	assert.Contains(t, f.uploads[0], "cog content")

	f.status = http.StatusForbidden
	err := c.Upload(ctx, "gs://bucket/out.tif", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload gs://bucket/out.tif")
}
