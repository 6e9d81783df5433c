package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/eventq/internal/engine"
)

func get(t *testing.T, srv *httptest.Server, path string, v any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestRouter(t *testing.T) {
	c := NewCollector()
	c.Add(filled(t))
	srv := httptest.NewServer(NewRouter(c, NewRegistry(c)))
	defer srv.Close()

	var health map[string]string
	assert.Equal(t, http.StatusOK, get(t, srv, "/healthz", &health))
	assert.Equal(t, "ok", health["status"])

	var queues []queueJSON
	assert.Equal(t, http.StatusOK, get(t, srv, "/queues", &queues))
	require.Len(t, queues, 1)
	assert.Equal(t, "main", queues[0].Name)
	assert.Equal(t, 4, queues[0].Capacity)

	var one queueJSON
	assert.Equal(t, http.StatusOK, get(t, srv, "/queues/main", &one))
	assert.Equal(t, queues[0], one)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/queues/missing", nil))

	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/engine", nil))
	c.SetLoop(func() engine.Stats { return engine.Stats{Steps: 7, Routes: 2} })
	var eng engineJSON
	assert.Equal(t, http.StatusOK, get(t, srv, "/engine", &eng))
	assert.Equal(t, engineJSON{Steps: 7, Routes: 2}, eng)

	assert.Equal(t, http.StatusOK, get(t, srv, "/metrics", nil))

	resp, err := http.Post(srv.URL+"/healthz", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
