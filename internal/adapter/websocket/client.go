package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/crowdpulse/internal/domain"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
	"github.com/pscheid92/crowdpulse/internal/platform/version"
	"github.com/rs/xid"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	maxMessageSize          = 64 * 1024
)

type ClientConfig struct {
	URL              string
	AccessToken      string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Client is a connection to the event stream. Received frames are pushed
// into the sink; writes are serialised.
type Client struct {
	id           string
	conn         *websocket.Conn
	sink         domain.PayloadSink
	writeTimeout time.Duration

	writeMu   sync.Mutex
	connected atomic.Bool
	lastError atomic.Value
	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

var _ domain.Transport = (*Client)(nil)

// Dial connects to the event stream and starts the read pump. A rejected
// access token is a validation error and a 429 is a capacity error; every
// other failure is a transport error.
func Dial(ctx context.Context, cfg ClientConfig, sink domain.PayloadSink) (*Client, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = defaultHandshakeTimeout
	}

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	if cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+cfg.AccessToken)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, dialError(resp, err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Client{
		id:           xid.New().String(),
		conn:         conn,
		sink:         sink,
		writeTimeout: cfg.WriteTimeout,
		done:         make(chan struct{}),
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = defaultWriteTimeout
	}
	c.lastError.Store("")
	c.connected.Store(true)

	go c.readPump()

	slog.DebugContext(ctx, "Event stream connected", "connection_id", c.id)
	return c, nil
}

func dialError(resp *http.Response, err error) error {
	if resp == nil {
		return apperrors.TransportError("failed to dial event stream", err)
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.ValidationError("access token rejected by event stream").
			WithContext("status", resp.StatusCode)
	case http.StatusTooManyRequests:
		return apperrors.CapacityError("event stream is rate limiting connections").
			WithContext("status", resp.StatusCode)
	default:
		return apperrors.TransportError("failed to dial event stream", err).
			WithContext("status", resp.StatusCode)
	}
}

func (c *Client) Connected() bool { return c.connected.Load() }

func (c *Client) LastError() string { return c.lastError.Load().(string) }

func (c *Client) readPump() {
	defer close(c.done)
	defer c.connected.Store(false)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closing.Load() {
				c.lastError.Store(err.Error())
				slog.Warn("Event stream read failed", "connection_id", c.id, "error", err)
			}
			return
		}
		c.sink.Push(data)
	}
}

// Send writes one text frame. The context deadline, if earlier than the
// write timeout, bounds the write.
func (c *Client) Send(ctx context.Context, payload []byte) error {
	if !c.connected.Load() {
		return apperrors.TransportError("event stream is not connected", domain.ErrNotConnected)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.lastError.Store(err.Error())
		return apperrors.TransportError("failed to write to event stream", err)
	}
	return nil
}

// Close sends a close frame and tears the connection down. It returns once
// the read pump has stopped pushing into the sink and is safe to call more
// than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.connected.Store(false)

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()

		if closeErr := c.conn.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = fmt.Errorf("close event stream: %w", closeErr)
		}
		<-c.done
	})
	return err
}

// Dialer opens Clients with a fixed configuration.
type Dialer struct {
	cfg ClientConfig
}

func NewDialer(cfg ClientConfig) *Dialer {
	return &Dialer{cfg: cfg}
}

func (d *Dialer) Dial(ctx context.Context, sink domain.PayloadSink) (domain.Transport, error) {
	c, err := Dial(ctx, d.cfg, sink)
	if err != nil {
		return nil, err
	}
	return c, nil
}
