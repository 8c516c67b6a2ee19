package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"fsbridge/internal/domain"
)

// SchemaValidatingCommand wraps a Command with JSON Schema validation.
// On Execute, it validates params against the compiled schema before delegating.
type SchemaValidatingCommand struct {
	inner  domain.Command
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps a command so that Execute validates params against
// the command's JSON Schema before forwarding to the inner command.
// Returns error if the schema fails to compile.
func WithSchemaValidation(c domain.Command) (domain.Command, error) {
	raw := c.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return c, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", c.Name(), err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", c.Name(), err)
	}

	return &SchemaValidatingCommand{inner: c, schema: compiled}, nil
}

func (s *SchemaValidatingCommand) Name() string                 { return s.inner.Name() }
func (s *SchemaValidatingCommand) Description() string          { return s.inner.Description() }
func (s *SchemaValidatingCommand) Schema() domain.CommandSchema { return s.inner.Schema() }

func (s *SchemaValidatingCommand) Execute(ctx context.Context, params json.RawMessage) (domain.CommandResult, error) {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	var v any
	if err := json.Unmarshal(params, &v); err != nil {
		return domain.CommandResult{}, domain.NewDomainError("command."+s.Name(),
			domain.ErrInvalidInput, fmt.Sprintf("invalid JSON: %v", err))
	}

	if err := s.schema.Validate(v); err != nil {
		return domain.CommandResult{}, domain.NewDomainError("command."+s.Name(),
			domain.ErrInvalidInput, fmt.Sprintf("schema validation failed: %v", err))
	}

	return s.inner.Execute(ctx, params)
}
