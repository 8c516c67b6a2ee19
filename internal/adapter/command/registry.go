package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/oklog/ulid/v2"

	"fsbridge/internal/domain"
)

// maxSuggestDistance bounds the edit distance for "did you mean" hints.
const maxSuggestDistance = 3

// Registry holds named commands and invokes them on behalf of boundary adapters.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]domain.Command
	logger   *slog.Logger
	bus      domain.EventBus

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var _ domain.CommandInvoker = (*Registry)(nil)

// NewRegistry creates an empty command registry. Registered commands are
// wrapped with schema validation. bus may be nil, in which case no command
// events are published.
func NewRegistry(logger *slog.Logger, bus domain.EventBus) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		commands: make(map[string]domain.Command),
		logger:   logger,
		bus:      bus,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Register adds a command. Returns ErrCommandDuplicate if the name is taken.
// If schema compilation fails, the command is registered without validation
// and a warning is logged.
func (r *Registry) Register(c domain.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.commands[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrCommandDuplicate, name)
	}

	wrapped, err := WithSchemaValidation(c)
	if err != nil {
		r.logger.Warn("schema validation disabled for command",
			"command", name, "error", err)
	} else {
		c = wrapped
	}

	r.commands[name] = c
	return nil
}

// Get retrieves a command by name. An unknown name yields ErrCommandNotFound,
// with the closest registered name as a hint when one is near enough.
func (r *Registry) Get(name string) (domain.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.commands[name]
	if !ok {
		detail := name
		if s := r.suggestLocked(name); s != "" {
			detail = fmt.Sprintf("%s (did you mean %q?)", name, s)
		}
		return nil, domain.NewDomainError("Registry.Get", domain.ErrCommandNotFound, detail)
	}
	return c, nil
}

func (r *Registry) suggestLocked(name string) string {
	best, bestDist := "", maxSuggestDistance+1
	for candidate := range r.commands {
		d := levenshtein.ComputeDistance(name, candidate)
		if d < bestDist || (d == bestDist && candidate < best) {
			best, bestDist = candidate, d
		}
	}
	if bestDist > maxSuggestDistance {
		return ""
	}
	return best
}

// Names returns the registered command names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all registered commands sorted by name.
func (r *Registry) List() []domain.Command {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()
	cmds := make([]domain.Command, 0, len(names))
	for _, name := range names {
		if c, ok := r.commands[name]; ok {
			cmds = append(cmds, c)
		}
	}
	return cmds
}

// Schemas returns all command schemas sorted by name.
func (r *Registry) Schemas() []domain.CommandSchema {
	cmds := r.List()
	schemas := make([]domain.CommandSchema, 0, len(cmds))
	for _, c := range cmds {
		schemas = append(schemas, c.Schema())
	}
	return schemas
}

// Invoke looks up name and executes it. A request id is attached to ctx
// unless the caller already set one, and command.started plus one of
// command.completed or command.failed are published on the bus.
func (r *Registry) Invoke(ctx context.Context, name string, params json.RawMessage) (domain.CommandResult, error) {
	if domain.RequestIDFromContext(ctx) == "" {
		ctx = domain.ContextWithRequestID(ctx, r.newRequestID())
	}

	c, err := r.Get(name)
	if err != nil {
		r.publish(ctx, domain.EventCommandFailed, domain.CommandEventPayload{
			Command: name,
			Code:    domain.ErrorCodeOf(err),
		})
		return domain.CommandResult{}, err
	}

	r.publish(ctx, domain.EventCommandStarted, domain.CommandEventPayload{Command: name})

	start := time.Now()
	result, err := c.Execute(ctx, params)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		r.publish(ctx, domain.EventCommandFailed, domain.CommandEventPayload{
			Command:    name,
			Code:       domain.ErrorCodeOf(err),
			DurationMs: elapsed,
		})
		return domain.CommandResult{}, err
	}

	r.publish(ctx, domain.EventCommandCompleted, domain.CommandEventPayload{
		Command:    name,
		Code:       result.Code,
		DurationMs: elapsed,
	})
	return result, nil
}

func (r *Registry) newRequestID() string {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
}

func (r *Registry) publish(ctx context.Context, eventType domain.EventType, payload domain.CommandEventPayload) {
	publishCommandEvent(ctx, r.bus, eventType, payload)
}

// publishCommandEvent publishes a command event on the bus. A nil bus is a
// no-op. The request id is taken from ctx.
func publishCommandEvent(ctx context.Context, bus domain.EventBus, eventType domain.EventType, payload any) {
	if bus == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			raw = data
		}
	}
	bus.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		RequestID: domain.RequestIDFromContext(ctx),
		Payload:   raw,
	})
}
