package transport

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
)

// sseServer streams the given event payloads and then blocks until the
// client disconnects.
func sseServer(t *testing.T, payloads ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "box1", r.URL.Query().Get("box"))
		assert.NotEmpty(t, r.URL.Query().Get("client"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
		}
		flusher.Flush()
		<-r.Context().Done()
	}))
}

func newPushTransport(t *testing.T, srv *httptest.Server) *HTTP {
	t.Helper()
	tr, err := NewHTTP(HTTPConfig{BaseURL: srv.URL, ID: "box1"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestSubscriberDeliversHint(t *testing.T) {
	srv := sseServer(t, `{"type":"box","id":"box1","data":{"version":7}}`)
	t.Cleanup(srv.Close)

	tr := newPushTransport(t, srv)
	hint, ok := tr.AwaitChange(context.Background(), 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, "box1", hint.ID)
	assert.Equal(t, int64(7), hint.Version)
}

func TestSubscriberCoalescesBurst(t *testing.T) {
	srv := sseServer(t,
		`{"type":"box","id":"box1","data":{"version":1}}`,
		`{"type":"box","id":"box1","data":{"version":2}}`,
		`{"type":"box","id":"box1","data":{"version":3}}`,
	)
	t.Cleanup(srv.Close)

	tr := newPushTransport(t, srv)

	// Allow the burst to land before draining.
	time.Sleep(100 * time.Millisecond)
	hint, ok := tr.AwaitChange(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, int64(3), hint.Version, "latest hint wins")

	_, ok = tr.AwaitChange(context.Background(), 50*time.Millisecond)
	assert.False(t, ok, "burst coalesced into a single hint")
}

func TestSubscriberIgnoresForeignAndMalformedEvents(t *testing.T) {
	srv := sseServer(t,
		`{"type":"box","id":"other-box","data":{"version":9}}`,
		`{"type":"heartbeat","id":"box1"}`,
		`this is not json`,
	)
	t.Cleanup(srv.Close)

	tr := newPushTransport(t, srv)
	_, ok := tr.AwaitChange(context.Background(), 200*time.Millisecond)
	assert.False(t, ok)
}

func TestSubscriberReconnects(t *testing.T) {
	var served atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if served.Add(1) == 1 {
			// First connection dies immediately; the subscriber must retry.
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"box\",\"id\":\"box1\",\"data\":{\"version\":2}}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	tr := newPushTransport(t, srv)
	hint, ok := tr.AwaitChange(context.Background(), 10*time.Second)
	require.True(t, ok)
	assert.Equal(t, int64(2), hint.Version)
	assert.GreaterOrEqual(t, served.Load(), int32(2))
}
