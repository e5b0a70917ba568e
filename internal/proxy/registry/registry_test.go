package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
	"github.com/lk2023060901/chat-bridge/internal/proxy/types"
)

func modelServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[
			{"id":"zeta","object":"model","created":1,"owned_by":"proxy"},
			{"id":"alpha","object":"model","created":2,"owned_by":"proxy"}
		]}`)
	}))
}

func testRegistry(t *testing.T, ttl time.Duration) *Registry {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "console"})
	require.NoError(t, err)
	return New(ttl, log)
}

func TestModelsCachesWithinTTL(t *testing.T) {
	var hits atomic.Int64
	server := modelServer(t, &hits)
	defer server.Close()

	reg := testRegistry(t, time.Minute)
	cfg := &types.Config{BaseURL: server.URL, APIKey: "k"}

	first, err := reg.Models(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "alpha", first[0].ID, "listing is sorted by id")

	second, err := reg.Models(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), hits.Load(), "second read must come from cache")
}

func TestModelsKeyedByEndpointAndCredential(t *testing.T) {
	var hits atomic.Int64
	server := modelServer(t, &hits)
	defer server.Close()

	reg := testRegistry(t, time.Minute)

	_, err := reg.Models(context.Background(), &types.Config{BaseURL: server.URL, APIKey: "a"})
	require.NoError(t, err)
	_, err = reg.Models(context.Background(), &types.Config{BaseURL: server.URL, APIKey: "b"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), hits.Load(), "a different credential is a different cache entry")
}

func TestModelsZeroTTLDisablesCache(t *testing.T) {
	var hits atomic.Int64
	server := modelServer(t, &hits)
	defer server.Close()

	reg := testRegistry(t, 0)
	cfg := &types.Config{BaseURL: server.URL}

	_, err := reg.Models(context.Background(), cfg)
	require.NoError(t, err)
	_, err = reg.Models(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, int64(2), hits.Load())
}

func TestModelsInvalidate(t *testing.T) {
	var hits atomic.Int64
	server := modelServer(t, &hits)
	defer server.Close()

	reg := testRegistry(t, time.Minute)
	cfg := &types.Config{BaseURL: server.URL}

	_, err := reg.Models(context.Background(), cfg)
	require.NoError(t, err)

	reg.Invalidate(cfg)

	_, err = reg.Models(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load())
}

func TestHasModel(t *testing.T) {
	var hits atomic.Int64
	server := modelServer(t, &hits)
	defer server.Close()

	reg := testRegistry(t, time.Minute)
	cfg := &types.Config{BaseURL: server.URL}

	ok, err := reg.HasModel(context.Background(), cfg, "alpha")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.HasModel(context.Background(), cfg, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestModelsFetchError(t *testing.T) {
	reg := testRegistry(t, time.Minute)

	_, err := reg.Models(context.Background(), &types.Config{BaseURL: "http://127.0.0.1:1"})
	require.Error(t, err)
	assert.True(t, types.IsTransient(err), "unreachable endpoint maps to a transient error")
}
