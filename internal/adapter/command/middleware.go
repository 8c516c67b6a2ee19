package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"fsbridge/internal/domain"
	"fsbridge/internal/infra/tracer"
)

// Execute is the standard command pipeline: parse params -> start trace -> run handler -> log outcome.
//
// The handler receives the parsed params and the active span. Failures are
// returned as typed errors; the span and log line carry the error code.
func Execute[P any](
	ctx context.Context,
	name string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (domain.CommandResult, error),
) (domain.CommandResult, error) {
	ctx, span := tracer.StartCommandSpan(ctx, name, domain.RequestIDFromContext(ctx))
	defer span.End()

	start := time.Now()
	p, err := ParseParams[P](name, rawParams)
	if err == nil {
		var result domain.CommandResult
		result, err = handler(ctx, span, p)
		if err == nil {
			tracer.SetOK(span)
			logger.Debug("command completed",
				"command", name,
				"request_id", domain.RequestIDFromContext(ctx),
				"duration", time.Since(start),
			)
			return result, nil
		}
	}

	code := domain.ErrorCodeOf(err)
	tracer.FailCommandSpan(span, string(code), err)
	logger.Warn("command failed",
		"command", name,
		"request_id", domain.RequestIDFromContext(ctx),
		"code", string(code),
		"error", err,
	)
	return domain.CommandResult{}, err
}

// ParseParams unmarshals rawParams into P. Malformed input is an
// ErrInvalidInput domain error.
func ParseParams[P any](name string, rawParams json.RawMessage) (P, error) {
	var p P
	if len(rawParams) == 0 {
		rawParams = json.RawMessage("{}")
	}
	if err := json.Unmarshal(rawParams, &p); err != nil {
		return p, domain.NewDomainError("command."+name, domain.ErrInvalidInput,
			fmt.Sprintf("invalid params: %v", err))
	}
	return p, nil
}
