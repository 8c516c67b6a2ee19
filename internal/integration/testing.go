// Package integration holds cross-surface tests that drive the same command
// registry through the WebSocket gateway and the MCP server.
package integration

import (
	"context"
	"os"
	"testing"
	"time"
)

// Config holds integration test configuration from environment
type Config struct {
	GatewayURL  string // external gateway to test against; empty skips those tests
	Token       string
	TestTimeout time.Duration
	SkipSlow    bool
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	return &Config{
		GatewayURL:  os.Getenv("FSBRIDGE_IT_GATEWAY_URL"),
		Token:       os.Getenv("FSBRIDGE_IT_TOKEN"),
		TestTimeout: 30 * time.Second,
		SkipSlow:    os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfNoGateway skips the test when no external gateway is configured.
func SkipIfNoGateway(t *testing.T, cfg *Config) {
	t.Helper()
	if cfg.GatewayURL == "" {
		t.Skip("Skipping external gateway test: FSBRIDGE_IT_GATEWAY_URL not set")
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
