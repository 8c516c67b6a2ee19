package bridgeclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNotReady is returned by WaitUntilReady when every attempt failed.
var ErrNotReady = errors.New("bridgeclient: gateway not ready")

// WaitUntilReady polls healthURL until it answers 200 OK, trying at most
// attempts times with interval between tries. It returns ErrNotReady wrapping
// the last failure, or ctx.Err() if ctx ends first.
func WaitUntilReady(ctx context.Context, healthURL string, attempts int, interval time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	client := &http.Client{Timeout: interval + time.Second}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}

		lastErr = probe(ctx, client, healthURL)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrNotReady, attempts, lastErr)
}

func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
