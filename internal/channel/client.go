package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nupi-ai/plugin-live-translate/internal/moduleinfo"
)

// DefaultPath is the hub's websocket route.
const DefaultPath = "/ws"

// Options configures a Client.
type Options struct {
	// Endpoint is host:port or a full ws:// / wss:// URL.
	Endpoint     string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// Client publishes events to the broadcast hub over one websocket. Publish
// is fire-and-forget: no acknowledgement, buffering, or retry.
type Client struct {
	url          string
	dialTimeout  time.Duration
	writeTimeout time.Duration
	dialer       websocket.Dialer
	log          *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	wg   sync.WaitGroup
}

// NewClient validates opts. It does not dial; call Connect.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	target, err := EndpointURL(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = opts.DialTimeout
	return &Client{
		url:          target,
		dialTimeout:  opts.DialTimeout,
		writeTimeout: opts.WriteTimeout,
		dialer:       dialer,
		log:          logger.With("component", "channel.Client", "endpoint", target),
	}, nil
}

// EndpointURL turns host:port into ws://host:port/ws and passes websocket
// URLs through.
func EndpointURL(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", errors.New("channel: endpoint required")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "ws://" + endpoint + DefaultPath
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("channel: parse endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("channel: unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("channel: endpoint %q has no host", endpoint)
	}
	if u.Path == "" {
		u.Path = DefaultPath
	}
	return u.String(), nil
}

// URL returns the resolved websocket URL.
func (c *Client) URL() string { return c.url }

// Connect dials the hub. It is a no-op while a connection is live.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	if c.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()
	}

	headers := http.Header{}
	headers.Set("User-Agent", moduleinfo.UserAgent())
	conn, resp, err := c.dialer.DialContext(ctx, c.url, headers)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return &ConnectionError{Endpoint: c.url, Err: err}
	}

	c.conn = conn
	c.wg.Add(1)
	go c.readLoop(conn)
	c.log.Info("connected to hub")
	return nil
}

// Connected reports whether a live connection is held.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Publish writes one transcription_result event.
func (c *Client) Publish(ctx context.Context, payload Payload) error {
	frame, err := EncodeEvent(EventTranscriptionResult, payload)
	if err != nil {
		return &PublishError{Event: EventTranscriptionResult, Err: err}
	}
	return c.publishFrame(ctx, EventTranscriptionResult, frame)
}

// Emit writes an arbitrary event.
func (c *Client) Emit(ctx context.Context, event string, data any) error {
	frame, err := EncodeEvent(event, data)
	if err != nil {
		return &PublishError{Event: event, Err: err}
	}
	return c.publishFrame(ctx, event, frame)
}

func (c *Client) publishFrame(ctx context.Context, event string, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return &PublishError{Event: event, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return &PublishError{Event: event, Err: ErrNotConnected}
	}

	var deadline time.Time
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		c.dropLocked()
		return &PublishError{Event: event, Err: err}
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.dropLocked()
		return &PublishError{Event: event, Err: err}
	}
	return nil
}

// Close sends a close frame and waits for the reader to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.wg.Wait()
	return err
}

// readLoop discards inbound frames and notices when the hub goes away.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.log.Warn("hub connection lost", "error", err)
				c.dropLocked()
			}
			c.mu.Unlock()
			return
		}
	}
}

func (c *Client) dropLocked() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
}
