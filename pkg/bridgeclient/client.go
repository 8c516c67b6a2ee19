// Package bridgeclient is a Go client for the fsbridge WebSocket gateway.
//
// Example:
//
//	c, err := bridgeclient.Dial(ctx, "ws://127.0.0.1:8090/ws",
//	    bridgeclient.WithToken(token),
//	)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	text, err := c.ReadAllText(ctx, "./fixtures/a.txt")
//	var re *bridgeclient.RemoteError
//	if errors.As(err, &re) && re.Code == bridgeclient.CodeNotFound {
//	    // the file is gone
//	}
package bridgeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Method names understood by the gateway.
const (
	MethodReadAllText = "read_all_text"
	MethodFileExists  = "file_exists"
	MethodCommandList = "command.list"
)

// Default breaker and dial settings.
const (
	defaultMaxFailures uint32        = 3
	defaultOpenFor     time.Duration = 10 * time.Second
	defaultDialTimeout time.Duration = 5 * time.Second
)

var (
	// ErrConnectionLost is returned to calls in flight when the connection drops.
	ErrConnectionLost = errors.New("bridgeclient: connection lost")
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("bridgeclient: client closed")
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = gobreaker.ErrOpenState
)

type frame struct {
	Type    string          `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

type reply struct {
	frame frame
	err   error
}

// Event is a bus event forwarded by the gateway.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// CommandInfo describes a command offered by the gateway.
type CommandInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Client calls commands on a gateway over one WebSocket connection. It is
// safe for concurrent use; a dropped connection is re-dialled on the next call.
type Client struct {
	url         string
	token       string
	logger      *slog.Logger
	dialTimeout time.Duration
	maxFailures uint32
	openFor     time.Duration
	onEvent     func(Event)

	breaker *gobreaker.CircuitBreaker[json.RawMessage]

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	nextID    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan reply
}

// New creates a client for the gateway WebSocket URL without connecting.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		logger:      slog.Default(),
		dialTimeout: defaultDialTimeout,
		maxFailures: defaultMaxFailures,
		openFor:     defaultOpenFor,
		pending:     make(map[uint64]chan reply),
	}
	for _, opt := range opts {
		opt(c)
	}

	maxFailures := c.maxFailures
	c.breaker = gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "bridge:" + url,
		MaxRequests: 1,
		Timeout:     c.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: isTransportHealthy,
	})
	return c
}

// Dial creates a client and connects it immediately.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := New(url, opts...)
	if _, err := c.connection(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// dialError is a failure to reach the gateway, including a dial that ran
// past the dial timeout.
type dialError struct{ err error }

func (e *dialError) Error() string { return e.err.Error() }
func (e *dialError) Unwrap() error { return e.err }

// isTransportHealthy reports whether err says nothing about the connection.
// Typed command failures and the caller's own cancellation or deadline do
// not trip the breaker; dial failures always do.
func isTransportHealthy(err error) bool {
	if err == nil {
		return true
	}
	var de *dialError
	if errors.As(err, &de) {
		return false
	}
	var re *RemoteError
	return errors.As(err, &re) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Call invokes method with params (marshalled to JSON) and returns the raw
// result payload. Failures reported by the gateway are *RemoteError.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("bridgeclient: marshal params: %w", err)
		}
		raw = data
	}

	result, err := c.breaker.Execute(func() (json.RawMessage, error) {
		return c.roundTrip(ctx, method, raw)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("bridgeclient: %s: %w", method, err)
	}
	return result, err
}

type pathArg struct {
	Name string `json:"name"`
}

// ReadAllText returns the contents of path on the host.
func (c *Client) ReadAllText(ctx context.Context, path string) (string, error) {
	raw, err := c.Call(ctx, MethodReadAllText, pathArg{Name: path})
	if err != nil {
		return "", err
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("bridgeclient: decode %s result: %w", MethodReadAllText, err)
	}
	return text, nil
}

// FileExists reports whether path exists on the host. The error is non-nil
// only when the gateway could not be reached.
func (c *Client) FileExists(ctx context.Context, path string) (bool, error) {
	raw, err := c.Call(ctx, MethodFileExists, pathArg{Name: path})
	if err != nil {
		return false, err
	}
	var exists bool
	if err := json.Unmarshal(raw, &exists); err != nil {
		return false, fmt.Errorf("bridgeclient: decode %s result: %w", MethodFileExists, err)
	}
	return exists, nil
}

// ListCommands returns the commands the gateway exposes.
func (c *Client) ListCommands(ctx context.Context) ([]CommandInfo, error) {
	raw, err := c.Call(ctx, MethodCommandList, nil)
	if err != nil {
		return nil, err
	}
	var cmds []CommandInfo
	if err := json.Unmarshal(raw, &cmds); err != nil {
		return nil, fmt.Errorf("bridgeclient: decode %s result: %w", MethodCommandList, err)
	}
	return cmds, nil
}

// BreakerState reports the circuit breaker state ("closed", "half-open", "open").
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Close closes the connection. Calls in flight fail with ErrConnectionLost.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.closed = true
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close(websocket.StatusNormalClosure, "")
	c.failPending()
	return err
}

// connection returns the live connection, dialling if needed.
func (c *Client) connection(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	var opts *websocket.DialOptions
	if c.token != "" {
		opts = &websocket.DialOptions{
			HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.token}},
		}
	}
	conn, resp, err := websocket.Dial(dialCtx, c.url, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &RemoteError{Code: CodeGatewayAuth, Message: "gateway rejected credentials"}
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("bridgeclient: dial %s: %w", c.url, ctx.Err())
		}
		return nil, &dialError{fmt.Errorf("bridgeclient: dial %s: %w", c.url, err)}
	}
	conn.SetReadLimit(-1)

	c.conn = conn
	go c.readLoop(conn)
	c.logger.Debug("bridge connected", "url", c.url)
	return conn, nil
}

func (c *Client) roundTrip(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	id := c.nextID.Add(1)
	ch := make(chan reply, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	req := frame{Type: "request", ID: id, Method: method, Payload: params}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.drop(conn)
		return nil, fmt.Errorf("bridgeclient: write %s: %w", method, err)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.frame.Error != "" {
			return nil, &RemoteError{Code: r.frame.Code, Message: r.frame.Error}
		}
		return r.frame.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.drop(conn)

	for {
		var f frame
		if err := wsjson.Read(context.Background(), conn, &f); err != nil {
			c.logger.Debug("bridge connection closed", "error", err)
			return
		}

		switch f.Type {
		case "response":
			c.pendingMu.Lock()
			ch, ok := c.pending[f.ID]
			c.pendingMu.Unlock()
			if ok {
				select {
				case ch <- reply{frame: f}:
				default:
				}
			}
		case "event":
			if c.onEvent == nil {
				continue
			}
			var ev Event
			if err := json.Unmarshal(f.Payload, &ev); err == nil {
				c.onEvent(ev)
			}
		}
	}
}

// drop forgets conn and, when it was the live connection, fails every call
// waiting on it.
func (c *Client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close(websocket.StatusNormalClosure, "")

	if current {
		c.failPending()
	}
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		select {
		case ch <- reply{err: ErrConnectionLost}:
		default:
		}
		delete(c.pending, id)
	}
}
