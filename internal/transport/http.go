package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/siniverse/taskbox/internal/replica"
)

// DefaultRequestTimeout bounds a single backend read or write. A slow call
// delays all cadences for the prop, so this stays short.
const DefaultRequestTimeout = 10 * time.Second

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	// BaseURL is the backend root, e.g. "http://backend:8888".
	BaseURL string
	// ID is the replica (box) id this transport is scoped to.
	ID string
	// Username and Password enable basic auth when Username is non-empty.
	Username string
	Password string
	// ProxyURL routes requests through an HTTP proxy when non-empty.
	ProxyURL string
	// RequestTimeout bounds one read/write. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration
	// DisablePush skips the event subscription; AwaitChange degrades to a
	// plain timed sleep.
	DisablePush bool
}

// HTTP talks to the backend's box API and feeds push hints from a
// server-sent-events subscription into a single-slot inbox.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
	boxURL string
	inbox  *inbox
	sub    *subscriber
	logger *slog.Logger
}

// NewHTTP validates the configuration, builds the client, and starts the
// push subscription (unless disabled).
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("transport: backend base URL is required")
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("transport: replica id is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	httpTransport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("transport: invalid proxy URL %q: %w", cfg.ProxyURL, err)
		}
		httpTransport.Proxy = http.ProxyURL(proxy)
	}

	t := &HTTP{
		cfg: cfg,
		client: &http.Client{
			Transport: httpTransport,
			Timeout:   cfg.RequestTimeout,
		},
		boxURL: base.JoinPath("data", "box", cfg.ID).String(),
		inbox:  newInbox(),
		logger: slog.Default().With("transport", "http", "box", cfg.ID),
	}

	if !cfg.DisablePush {
		t.sub = newSubscriber(subscriberConfig{
			eventsURL: base.JoinPath("events").String(),
			boxID:     cfg.ID,
			username:  cfg.Username,
			password:  cfg.Password,
			transport: httpTransport,
			inbox:     t.inbox,
			logger:    t.logger,
		})
		t.sub.start()
	}

	return t, nil
}

// Read fetches the replica with an authenticated GET. An empty or short
// body means the backend has not defined the box yet.
func (t *HTTP) Read(ctx context.Context) (replica.Replica, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.boxURL, nil)
	if err != nil {
		return replica.Replica{}, &NetworkError{Op: "read", Err: err}
	}
	t.auth(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return replica.Replica{}, &NetworkError{Op: "read", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return replica.Replica{}, &NetworkError{Op: "read", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return replica.Replica{}, &NetworkError{Op: "read", Err: err}
	}
	if len(bytes.TrimSpace(body)) < 2 {
		return replica.Replica{}, ErrNotDefined
	}

	var r replica.Replica
	if err := json.Unmarshal(body, &r); err != nil {
		return replica.Replica{}, &NetworkError{Op: "read", Err: fmt.Errorf("decoding replica: %w", err)}
	}
	return r, nil
}

// Write POSTs the full candidate replica. 200 adopts the backend's
// resulting replica; 409 signals a version conflict.
func (t *HTTP) Write(ctx context.Context, candidate replica.Replica) WriteResult {
	payload, err := json.Marshal(candidate)
	if err != nil {
		return WriteResult{Outcome: WriteNetworkError, Err: &NetworkError{Op: "write", Err: err}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.boxURL, bytes.NewReader(payload))
	if err != nil {
		return WriteResult{Outcome: WriteNetworkError, Err: &NetworkError{Op: "write", Err: err}}
	}
	req.Header.Set("Content-Type", "application/json")
	t.auth(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return WriteResult{Outcome: WriteNetworkError, Err: &NetworkError{Op: "write", Err: err}}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var stored replica.Replica
		if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
			return WriteResult{Outcome: WriteNetworkError, Err: &NetworkError{Op: "write", Err: fmt.Errorf("decoding replica: %w", err)}}
		}
		return WriteResult{Outcome: WriteOK, Replica: stored}
	case http.StatusConflict:
		return WriteResult{Outcome: WriteConflict}
	default:
		return WriteResult{Outcome: WriteNetworkError, Err: &NetworkError{Op: "write", Err: fmt.Errorf("unexpected status %s", resp.Status)}}
	}
}

// AwaitChange drains the push inbox, blocking up to timeout.
func (t *HTTP) AwaitChange(ctx context.Context, timeout time.Duration) (replica.PushHint, bool) {
	return t.inbox.await(ctx, timeout)
}

// Close stops the push subscription and releases idle connections.
func (t *HTTP) Close() error {
	if t.sub != nil {
		t.sub.stop()
	}
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTP) auth(req *http.Request) {
	if t.cfg.Username != "" {
		req.SetBasicAuth(t.cfg.Username, t.cfg.Password)
	}
}
