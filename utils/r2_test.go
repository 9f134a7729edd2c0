package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"affiliate-system/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestR2ClientPutObject(t *testing.T) {
	var (
		mu          sync.Mutex
		method      string
		path        string
		contentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path, contentType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cfg := config.R2Config{AccountID: "acct", AccessKeyID: "key", AccessKeySecret: "secret", Bucket: "archive"}
	client, err := newR2Client(context.Background(), cfg, srv.URL)
	require.NoError(t, err)

	err = client.PutObject(context.Background(), "affiliate-visits/2026/03/01/a.jsonl", []byte("{}\n"), "application/x-ndjson")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/archive/affiliate-visits/2026/03/01/a.jsonl", path)
	assert.Equal(t, "application/x-ndjson", contentType)
}

func TestR2ClientPutObjectRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<?xml version="1.0"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
	}))
	t.Cleanup(srv.Close)

	cfg := config.R2Config{AccountID: "acct", AccessKeyID: "key", AccessKeySecret: "secret", Bucket: "archive"}
	client, err := newR2Client(context.Background(), cfg, srv.URL)
	require.NoError(t, err)

	err = client.PutObject(context.Background(), "k", []byte("x"), "text/plain")
	assert.ErrorContains(t, err, "failed to upload to R2")
}
