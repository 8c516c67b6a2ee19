package command

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"fsbridge/internal/domain"
)

// stubCommand is a minimal command for testing validation and dispatch.
type stubCommand struct {
	name   string
	schema json.RawMessage
	result domain.CommandResult
	err    error
	calls  int
}

func (s *stubCommand) Name() string        { return s.name }
func (s *stubCommand) Description() string { return "stub" }
func (s *stubCommand) Schema() domain.CommandSchema {
	return domain.CommandSchema{
		Name:        s.name,
		Description: "stub",
		Parameters:  s.schema,
	}
}
func (s *stubCommand) Execute(_ context.Context, _ json.RawMessage) (domain.CommandResult, error) {
	s.calls++
	return s.result, s.err
}

var nameSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"name": {"type": "string"}
	},
	"required": ["name"],
	"additionalProperties": false
}`)

func TestSchemaValidation_ValidParams(t *testing.T) {
	inner := &stubCommand{name: "test", schema: nameSchema, result: domain.TextResult("ok")}

	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := wrapped.Execute(context.Background(), json.RawMessage(`{"name":"alice"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "ok" {
		t.Errorf("expected 'ok', got %q", result.Text)
	}
}

func TestSchemaValidation_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		params string
		want   string
	}{
		{"missing required", `{}`, "schema validation failed"},
		{"wrong type", `{"name":42}`, "schema validation failed"},
		{"unknown property", `{"name":"a","path":"b"}`, "schema validation failed"},
		{"malformed", `{"name":`, "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &stubCommand{name: "test", schema: nameSchema}
			wrapped, err := WithSchemaValidation(inner)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			_, err = wrapped.Execute(context.Background(), json.RawMessage(tt.params))
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
			if inner.calls != 0 {
				t.Error("inner command should not run")
			}
		})
	}
}

func TestSchemaValidation_NoSchema(t *testing.T) {
	inner := &stubCommand{name: "test"}
	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wrapped != domain.Command(inner) {
		t.Error("command without schema should be returned as is")
	}
}

func TestSchemaValidation_BadSchema(t *testing.T) {
	inner := &stubCommand{name: "test", schema: json.RawMessage(`{"type": 12}`)}
	if _, err := WithSchemaValidation(inner); err == nil {
		t.Error("expected compile error")
	}
}

func TestSchemaValidation_PassesMetadata(t *testing.T) {
	inner := &stubCommand{name: "meta", schema: nameSchema}
	wrapped, _ := WithSchemaValidation(inner)
	if wrapped.Name() != "meta" || wrapped.Description() != "stub" || wrapped.Schema().Name != "meta" {
		t.Errorf("metadata not forwarded: %s %s", wrapped.Name(), wrapped.Description())
	}
}
