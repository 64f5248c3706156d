package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/siniverse/taskbox/internal/replica"
)

// Push channel message type for box change notifications.
const msgTypeBoxUpdate = "box"

// Reconnect backoff bounds for the event stream.
const (
	subscribeBaseBackoff = time.Second
	subscribeMaxBackoff  = 30 * time.Second
)

// pushMessage is the envelope delivered on the event stream. Data is
// informational only; the client never applies it, it re-polls instead.
type pushMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Data struct {
		Version int64 `json:"version"`
	} `json:"data"`
}

type subscriberConfig struct {
	eventsURL string
	boxID     string
	username  string
	password  string
	transport http.RoundTripper
	inbox     *inbox
	logger    *slog.Logger
}

// subscriber maintains a persistent server-sent-events subscription scoped
// to one box id and forwards valid hints into the inbox. It owns no other
// state; the runner loop decides what a hint is worth.
type subscriber struct {
	cfg      subscriberConfig
	client   *http.Client
	clientID string
	cancel   context.CancelFunc
	done     chan struct{}
}

func newSubscriber(cfg subscriberConfig) *subscriber {
	return &subscriber{
		cfg: cfg,
		// No client timeout: the stream is long-lived by design.
		client:   &http.Client{Transport: cfg.transport},
		clientID: uuid.NewString(),
		done:     make(chan struct{}),
	}
}

func (s *subscriber) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
}

func (s *subscriber) stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// run reconnects forever with doubling backoff. Subscription failures are
// logged only; the poll cadence keeps the prop correct without push.
func (s *subscriber) run(ctx context.Context) {
	defer close(s.done)

	backoff := subscribeBaseBackoff
	for {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		s.cfg.logger.Warn("event stream lost, reconnecting",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, subscribeMaxBackoff)
	}
}

// consume opens the stream and forwards hints until it breaks.
func (s *subscriber) consume(ctx context.Context) error {
	streamURL := s.cfg.eventsURL + "?" + url.Values{
		"box":    {s.cfg.boxID},
		"client": {s.clientID},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.cfg.username != "" {
		req.SetBasicAuth(s.cfg.username, s.cfg.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &NetworkError{Op: "subscribe", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &NetworkError{Op: "subscribe", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	s.cfg.logger.Debug("event stream connected")

	scanner := bufio.NewScanner(resp.Body)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				s.dispatch(data.String())
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// Comments (":keepalive") and unknown fields are ignored.
		}
	}
	if err := scanner.Err(); err != nil {
		return &NetworkError{Op: "subscribe", Err: err}
	}
	return &NetworkError{Op: "subscribe", Err: errors.New("event stream closed by server")}
}

// dispatch parses one event payload and forwards it when it concerns our
// box. Malformed or foreign events are dropped silently.
func (s *subscriber) dispatch(payload string) {
	var msg pushMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		s.cfg.logger.Debug("dropping malformed push event", "error", err)
		return
	}
	if msg.Type != msgTypeBoxUpdate || msg.ID != s.cfg.boxID {
		return
	}
	s.cfg.inbox.put(replica.PushHint{ID: msg.ID, Version: msg.Data.Version})
}
