package bridgeclient

import (
	"log/slog"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// WithToken sets the gateway auth token, sent as a bearer header.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets a custom slog.Logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithDialTimeout bounds each connection attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithBreaker sets how many consecutive transport failures open the circuit
// and how long it stays open before a probe call is allowed through.
func WithBreaker(maxFailures uint32, openFor time.Duration) Option {
	return func(c *Client) {
		c.maxFailures = maxFailures
		c.openFor = openFor
	}
}

// WithEventHandler receives every event frame the gateway forwards.
// The handler runs on the connection's read goroutine and must not block.
func WithEventHandler(fn func(Event)) Option {
	return func(c *Client) { c.onEvent = fn }
}
