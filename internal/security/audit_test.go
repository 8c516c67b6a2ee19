package security

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"fsbridge/internal/domain"
)

func readAudit(t *testing.T, path string) []domain.AuditEvent {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	var out []domain.AuditEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e domain.AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %d invalid JSON: %v", len(out), err)
		}
		out = append(out, e)
	}
	return out
}

func newAuditLogger(t *testing.T) (*FileAuditLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := NewFileAuditLogger(path)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}
	return a, path
}

func TestFileAuditLogger_WriteAndRead(t *testing.T) {
	a, path := newAuditLogger(t)

	err := a.Log(context.Background(), domain.AuditEvent{
		Type:       domain.AuditCommandFailed,
		Command:    "read_all_text",
		Code:       domain.CodeNotFound,
		DurationMs: 3,
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := readAudit(t, path)
	if len(events) != 1 {
		t.Fatalf("got %d lines, want 1", len(events))
	}
	if events[0].Type != domain.AuditCommandFailed || events[0].Code != domain.CodeNotFound {
		t.Errorf("got %+v", events[0])
	}
	if events[0].Timestamp.IsZero() {
		t.Error("timestamp should be filled in")
	}
}

func TestFileAuditLogger_ConcurrentWrites(t *testing.T) {
	a, path := newAuditLogger(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Log(context.Background(), domain.AuditEvent{Type: domain.AuditCommandCompleted, Command: "file_exists"})
		}()
	}
	wg.Wait()
	a.Close()

	if got := len(readAudit(t, path)); got != n {
		t.Errorf("expected %d lines, got %d", n, got)
	}
}

func TestNewFileAuditLoggerInvalidPath(t *testing.T) {
	if _, err := NewFileAuditLogger("/nonexistent/dir/audit.jsonl"); err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestFileAuditLogger_WriteAfterClose(t *testing.T) {
	a, _ := newAuditLogger(t)
	a.Close()

	err := a.Log(context.Background(), domain.AuditEvent{Type: domain.AuditCommandCompleted})
	if domain.ErrorCodeOf(err) != domain.CodeAuditWrite {
		t.Errorf("code = %s, want %s (err %v)", domain.ErrorCodeOf(err), domain.CodeAuditWrite, err)
	}
}

func TestFileAuditLogger_FilePermissions(t *testing.T) {
	a, path := newAuditLogger(t)
	defer a.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 600", perm)
	}
}

func TestFileAuditLogger_SpanEvent(t *testing.T) {
	a, _ := newAuditLogger(t)
	defer a.Close()

	rec := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "command.read_all_text")
	if err := a.Log(ctx, domain.AuditEvent{Type: domain.AuditCommandCompleted, Command: "read_all_text"}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("got %d spans, want 1", len(ended))
	}
	evs := ended[0].Events()
	if len(evs) != 1 || evs[0].Name != "audit.command_completed" {
		t.Errorf("span events = %+v", evs)
	}
}

func TestFileAuditLogger_EnforceRetention_MaxAge(t *testing.T) {
	a, path := newAuditLogger(t)

	a.Log(context.Background(), domain.AuditEvent{Timestamp: time.Now().Add(-2 * time.Hour), Type: domain.AuditCommandCompleted, Command: "old"})
	a.Log(context.Background(), domain.AuditEvent{Timestamp: time.Now(), Type: domain.AuditCommandCompleted, Command: "new"})
	a.SetRetention(RetentionPolicy{MaxAge: time.Hour})

	removed, err := a.EnforceRetention(context.Background())
	if err != nil {
		t.Fatalf("EnforceRetention: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	// Writes after retention land in the rewritten file.
	a.Log(context.Background(), domain.AuditEvent{Type: domain.AuditCommandCompleted, Command: "after"})
	a.Close()

	events := readAudit(t, path)
	if len(events) != 2 || events[0].Command != "new" || events[1].Command != "after" {
		t.Errorf("remaining = %+v", events)
	}
}

func TestFileAuditLogger_EnforceRetention_MaxSize(t *testing.T) {
	a, path := newAuditLogger(t)
	for i := 0; i < 20; i++ {
		a.Log(context.Background(), domain.AuditEvent{Type: domain.AuditCommandCompleted, Command: "file_exists"})
	}
	a.SetRetention(RetentionPolicy{MaxSize: 500})

	removed, err := a.EnforceRetention(context.Background())
	if err != nil {
		t.Fatalf("EnforceRetention: %v", err)
	}
	if removed == 0 {
		t.Error("expected entries to be removed")
	}
	a.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > 500 {
		t.Errorf("size = %d, want <= 500", info.Size())
	}
	if got := len(readAudit(t, path)); got != 20-removed {
		t.Errorf("lines = %d, want %d", got, 20-removed)
	}
}

func TestFileAuditLogger_EnforceRetention_NoPolicy(t *testing.T) {
	a, _ := newAuditLogger(t)
	defer a.Close()
	a.Log(context.Background(), domain.AuditEvent{Type: domain.AuditCommandCompleted})

	removed, err := a.EnforceRetention(context.Background())
	if err != nil || removed != 0 {
		t.Errorf("removed = %d, err = %v; want 0, nil", removed, err)
	}
}

func TestParseRetentionMaxSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"100", 100, false},
		{"100B", 100, false},
		{"2KB", 2048, false},
		{"1mb", 1 << 20, false},
		{" 1GB ", 1 << 30, false},
		{"abc", 0, true},
		{"-5MB", 0, true},
		{"9999999999GB", 0, true},
		{"8589934591GB", 8589934591 << 30, false},
		{"8589934592GB", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRetentionMaxSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRetentionMaxSize(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRetentionMaxSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// fakeBus records subscriptions so tests can deliver events synchronously.
type fakeBus struct {
	mu       sync.Mutex
	handlers map[domain.EventType][]domain.EventHandler
}

func (b *fakeBus) Publish(ctx context.Context, event domain.Event) {
	b.mu.Lock()
	hs := append([]domain.EventHandler(nil), b.handlers[event.Type]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(ctx, event)
	}
}

func (b *fakeBus) Subscribe(t domain.EventType, h domain.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[domain.EventType][]domain.EventHandler)
	}
	b.handlers[t] = append(b.handlers[t], h)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, t)
	}
}

func (b *fakeBus) SubscribeAll(domain.EventHandler) func() { return func() {} }
func (b *fakeBus) Close()                                   {}

func commandEvent(t *testing.T, typ domain.EventType, p domain.CommandEventPayload) domain.Event {
	t.Helper()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return domain.Event{Type: typ, Timestamp: time.Now(), RequestID: "01REQ", Payload: raw}
}

func TestAuditCommands(t *testing.T) {
	a, path := newAuditLogger(t)
	bus := &fakeBus{}
	unsub := AuditCommands(bus, a, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := domain.ContextWithClientID(context.Background(), "desktop#1")
	bus.Publish(ctx, commandEvent(t, domain.EventCommandStarted, domain.CommandEventPayload{Command: "read_all_text"}))
	bus.Publish(ctx, commandEvent(t, domain.EventCommandCompleted, domain.CommandEventPayload{Command: "read_all_text", DurationMs: 2}))
	bus.Publish(ctx, commandEvent(t, domain.EventCommandFailed, domain.CommandEventPayload{Command: "read_all_text", Code: domain.CodeNotFound}))
	bus.Publish(context.Background(), commandEvent(t, domain.EventCommandFailed, domain.CommandEventPayload{Command: "file_exists", Code: domain.CodePathOutsideSandbox}))

	unsub()
	bus.Publish(ctx, commandEvent(t, domain.EventCommandCompleted, domain.CommandEventPayload{Command: "late"}))
	a.Close()

	events := readAudit(t, path)
	if len(events) != 3 {
		t.Fatalf("got %d audit lines, want 3: %+v", len(events), events)
	}

	if events[0].Type != domain.AuditCommandCompleted || events[0].Actor != "desktop#1" || events[0].DurationMs != 2 {
		t.Errorf("completed entry = %+v", events[0])
	}
	if events[0].RequestID != "01REQ" {
		t.Errorf("request id = %q", events[0].RequestID)
	}
	if events[1].Type != domain.AuditCommandFailed || events[1].Code != domain.CodeNotFound {
		t.Errorf("failed entry = %+v", events[1])
	}
	if events[2].Type != domain.AuditAccessDenied || events[2].Actor != "" {
		t.Errorf("sandbox entry = %+v", events[2])
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "name") {
		t.Error("audit lines must not carry command arguments")
	}
}

func TestAuditCommands_AbsorbedSandboxRejection(t *testing.T) {
	a, path := newAuditLogger(t)
	bus := &fakeBus{}
	defer AuditCommands(bus, a, slog.New(slog.NewTextHandler(io.Discard, nil)))()

	bus.Publish(context.Background(), commandEvent(t, domain.EventCommandCompleted, domain.CommandEventPayload{
		Command: "file_exists",
		Code:    domain.CodePathOutsideSandbox,
	}))
	bus.Publish(context.Background(), commandEvent(t, domain.EventCommandCompleted, domain.CommandEventPayload{
		Command: "file_exists",
		Code:    domain.CodeTimeout,
	}))
	a.Close()

	events := readAudit(t, path)
	if len(events) != 2 {
		t.Fatalf("got %d audit lines, want 2", len(events))
	}
	if events[0].Type != domain.AuditAccessDenied || events[0].Code != domain.CodePathOutsideSandbox {
		t.Errorf("sandboxed file_exists entry = %+v", events[0])
	}
	if events[1].Type != domain.AuditCommandCompleted || events[1].Code != domain.CodeTimeout {
		t.Errorf("cancelled file_exists entry = %+v", events[1])
	}
}
