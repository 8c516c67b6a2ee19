package security

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"fsbridge/internal/domain"
	"fsbridge/internal/infra/tracer"
)

// RetentionPolicy bounds the size of the audit trail.
type RetentionPolicy struct {
	MaxAge  time.Duration // 0 = no limit
	MaxSize int64         // bytes; 0 = no limit
}

// FileAuditLogger implements domain.AuditLogger as an append-only JSONL file.
type FileAuditLogger struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	retention *RetentionPolicy
}

var _ domain.AuditLogger = (*FileAuditLogger)(nil)

func openAuditFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// NewFileAuditLogger opens (or creates with 0600) the audit file at path.
func NewFileAuditLogger(path string) (*FileAuditLogger, error) {
	f, err := openAuditFile(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileAuditLogger{file: f, path: path}, nil
}

// SetRetention configures the policy applied by EnforceRetention.
func (a *FileAuditLogger) SetRetention(policy RetentionPolicy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retention = &policy
}

// Log appends event as a single JSON line and mirrors it as a span event
// when ctx carries a recording span.
func (a *FileAuditLogger) Log(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	a.mu.Lock()
	_, err = a.file.Write(append(data, '\n'))
	a.mu.Unlock()
	if err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("audit."+string(event.Type), trace.WithAttributes(
			tracer.StringAttr("audit.command", event.Command),
			tracer.StringAttr("audit.code", string(event.Code)),
			tracer.StringAttr("audit.actor", event.Actor),
		))
	}
	return nil
}

// Close closes the audit file.
func (a *FileAuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// EnforceRetention rewrites the audit file keeping only entries younger than
// MaxAge, then drops the oldest entries until the file fits MaxSize. It
// returns the number of entries removed. Writers block while it runs.
func (a *FileAuditLogger) EnforceRetention(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.retention == nil {
		return 0, nil
	}
	policy := *a.retention

	data, err := os.ReadFile(a.path)
	if err != nil {
		return 0, fmt.Errorf("read audit log: %w", err)
	}
	if policy.MaxAge == 0 && (policy.MaxSize == 0 || int64(len(data)) <= policy.MaxSize) {
		return 0, nil
	}

	kept, removed, err := filterEntries(data, policy, time.Now())
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tmpPath := a.path + ".tmp"
	if err := os.WriteFile(tmpPath, kept, 0600); err != nil {
		return 0, fmt.Errorf("write audit log: %w", err)
	}

	// The old handle keeps pointing at the replaced inode, so swap it.
	if err := a.file.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("close audit log: %w", err)
	}
	renameErr := os.Rename(tmpPath, a.path)
	if renameErr != nil {
		os.Remove(tmpPath)
	}
	f, err := openAuditFile(a.path)
	if err != nil {
		return 0, fmt.Errorf("reopen audit log: %w", err)
	}
	a.file = f
	if renameErr != nil {
		return 0, fmt.Errorf("replace audit log: %w", renameErr)
	}
	return removed, nil
}

func filterEntries(data []byte, policy RetentionPolicy, now time.Time) ([]byte, int, error) {
	var cutoff time.Time
	if policy.MaxAge > 0 {
		cutoff = now.Add(-policy.MaxAge)
	}

	var lines [][]byte
	var size int64
	removed := 0

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !cutoff.IsZero() {
			var entry struct {
				Timestamp time.Time `json:"timestamp"`
			}
			if json.Unmarshal(line, &entry) == nil && entry.Timestamp.Before(cutoff) {
				removed++
				continue
			}
		}
		lines = append(lines, append([]byte(nil), line...))
		size += int64(len(line)) + 1
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan audit log: %w", err)
	}

	for policy.MaxSize > 0 && size > policy.MaxSize && len(lines) > 0 {
		size -= int64(len(lines[0])) + 1
		lines = lines[1:]
		removed++
	}

	var buf bytes.Buffer
	for _, l := range lines {
		buf.Write(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), removed, nil
}

// ParseRetentionMaxSize parses sizes such as "512KB", "100MB" or "1GB".
// An empty string means no limit.
func ParseRetentionMaxSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if strings.HasSuffix(s, unit.suffix) {
			multiplier = unit.mult
			s = strings.TrimSuffix(s, unit.suffix)
			break
		}
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("parse size %q: invalid", s)
	}
	if n > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("parse size %q: too large", s)
	}
	return n * multiplier, nil
}

// AuditCommands subscribes to command completion and failure events and
// writes one audit entry per event. Sandbox rejections are recorded as
// access_denied, including the ones file_exists absorbs into a false
// result. It returns a function that removes the subscriptions.
func AuditCommands(bus domain.EventBus, audit domain.AuditLogger, logger *slog.Logger) func() {
	handler := func(ctx context.Context, event domain.Event) {
		var payload domain.CommandEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			logger.Warn("audit: malformed command event", "event", string(event.Type), "error", err)
			return
		}

		entry := domain.AuditEvent{
			Timestamp:  event.Timestamp,
			Type:       domain.AuditCommandCompleted,
			RequestID:  event.RequestID,
			Actor:      domain.ClientIDFromContext(ctx),
			Command:    payload.Command,
			Code:       payload.Code,
			DurationMs: payload.DurationMs,
		}
		switch {
		case payload.Code == domain.CodePathOutsideSandbox:
			entry.Type = domain.AuditAccessDenied
		case event.Type == domain.EventCommandFailed:
			entry.Type = domain.AuditCommandFailed
		}

		if err := audit.Log(ctx, entry); err != nil {
			logger.Error("audit write failed", "request_id", event.RequestID, "error", err)
		}
	}

	unsubCompleted := bus.Subscribe(domain.EventCommandCompleted, handler)
	unsubFailed := bus.Subscribe(domain.EventCommandFailed, handler)
	return func() {
		unsubCompleted()
		unsubFailed()
	}
}
