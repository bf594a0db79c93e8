package compiler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflare-ai/agentmlcore/compiler"
)

func TestDefaultFetcherReadsBarePathRelativeToBaseDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "script.js"), []byte("var x = 1;"), 0o644))

	f := compiler.DefaultFetcher{BaseDir: dir}
	body, err := f.Fetch(context.Background(), "script.js")
	require.NoError(t, err)
	assert.Equal(t, "var x = 1;", body)
}

func TestDefaultFetcherReadsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "data.xml")
	require.NoError(t, os.WriteFile(abs, []byte("<data/>"), 0o644))

	f := compiler.DefaultFetcher{}
	body, err := f.Fetch(context.Background(), abs)
	require.NoError(t, err)
	assert.Equal(t, "<data/>", body)
}

func TestDefaultFetcherFetchesHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote body"))
	}))
	defer srv.Close()

	f := compiler.DefaultFetcher{}
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "remote body", body)
}

func TestDefaultFetcherHTTPErrorStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := compiler.DefaultFetcher{}
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestDefaultFetcherMissingFileFails(t *testing.T) {
	f := compiler.DefaultFetcher{BaseDir: t.TempDir()}
	_, err := f.Fetch(context.Background(), "does-not-exist.js")
	require.Error(t, err)
}
