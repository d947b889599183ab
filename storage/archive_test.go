package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whoosh-backend/config"
)

type recordedRequest struct {
	method string
	path   string
	body   string
}

func fakeS3(t *testing.T, status int) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{method: r.Method, path: r.URL.Path, body: string(body)})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func testArchiveConfig(endpoint string) config.ArchiveConfig {
	return config.ArchiveConfig{
		Bucket:          "matches",
		Endpoint:        endpoint,
		Region:          "auto",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	}
}

func TestMatchArchive_Upload(t *testing.T) {
	srv, requests := fakeS3(t, http.StatusOK)

	archive, err := NewMatchArchive(context.Background(), testArchiveConfig(srv.URL))
	require.NoError(t, err)

	payload := []byte(`{"id":"5f0c","status":"completed"}`)
	require.NoError(t, archive.Upload(context.Background(), "matches/2026/03/01/5f0c.json", payload))

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Equal(t, "/matches/matches/2026/03/01/5f0c.json", reqs[0].path)
	assert.Contains(t, reqs[0].body, string(payload))
}

func TestMatchArchive_UploadFailure(t *testing.T) {
	srv, _ := fakeS3(t, http.StatusForbidden)

	archive, err := NewMatchArchive(context.Background(), testArchiveConfig(srv.URL))
	require.NoError(t, err)

	err = archive.Upload(context.Background(), "matches/x.json", []byte(`{}`))
	assert.ErrorContains(t, err, "matches/x.json")
}

func TestNewMatchArchive_RequiresBucket(t *testing.T) {
	_, err := NewMatchArchive(context.Background(), config.ArchiveConfig{})
	assert.Error(t, err)
}
