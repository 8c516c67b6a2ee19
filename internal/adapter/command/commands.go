package command

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"fsbridge/internal/domain"
	"fsbridge/internal/infra/tracer"
)

// Command names as seen by callers.
const (
	ReadAllTextName = "read_all_text"
	FileExistsName  = "file_exists"
)

// pathParams is the argument object for both file commands. The front-end
// sends the path under "name".
type pathParams struct {
	Name     string `json:"name"`
	StripBOM bool   `json:"strip_bom,omitempty"`
}

// ReadAllTextCommand exposes Handler.ReadText as read_all_text.
type ReadAllTextCommand struct {
	handler *Handler
	logger  *slog.Logger
}

// NewReadAllTextCommand creates the read_all_text command.
func NewReadAllTextCommand(h *Handler, logger *slog.Logger) *ReadAllTextCommand {
	return &ReadAllTextCommand{handler: h, logger: logger}
}

func (c *ReadAllTextCommand) Name() string { return ReadAllTextName }
func (c *ReadAllTextCommand) Description() string {
	return "Read the entire contents of a file as UTF-8 text"
}

func (c *ReadAllTextCommand) Schema() domain.CommandSchema {
	return domain.CommandSchema{
		Name:        c.Name(),
		Description: c.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Path of the file to read"},
				"strip_bom": {"type": "boolean", "description": "Drop a leading UTF-8 byte order mark"}
			},
			"required": ["name"],
			"additionalProperties": false
		}`),
	}
}

func (c *ReadAllTextCommand) Execute(ctx context.Context, params json.RawMessage) (domain.CommandResult, error) {
	return Execute(ctx, c.Name(), c.logger, params,
		func(ctx context.Context, span trace.Span, p pathParams) (domain.CommandResult, error) {
			text, err := c.handler.ReadText(ctx, p.Name, ReadOptions{StripBOM: p.StripBOM})
			if err != nil {
				return domain.CommandResult{}, err
			}
			span.SetAttributes(tracer.IntAttr("command.bytes", len(text)))
			return domain.TextResult(text), nil
		},
	)
}

// FileExistsCommand exposes Handler.FileExists as file_exists.
type FileExistsCommand struct {
	handler *Handler
	logger  *slog.Logger
}

// NewFileExistsCommand creates the file_exists command.
func NewFileExistsCommand(h *Handler, logger *slog.Logger) *FileExistsCommand {
	return &FileExistsCommand{handler: h, logger: logger}
}

func (c *FileExistsCommand) Name() string        { return FileExistsName }
func (c *FileExistsCommand) Description() string { return "Report whether a file or directory exists" }

func (c *FileExistsCommand) Schema() domain.CommandSchema {
	return domain.CommandSchema{
		Name:        c.Name(),
		Description: c.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Path to check"}
			},
			"required": ["name"],
			"additionalProperties": false
		}`),
	}
}

func (c *FileExistsCommand) Execute(ctx context.Context, params json.RawMessage) (domain.CommandResult, error) {
	return Execute(ctx, c.Name(), c.logger, params,
		func(ctx context.Context, span trace.Span, p pathParams) (domain.CommandResult, error) {
			exists, err := c.handler.fileExistsDetailed(ctx, p.Name)
			span.SetAttributes(tracer.BoolAttr("command.exists", exists))
			result := domain.ExistsResult(exists)
			if err != nil {
				result.Code = domain.ErrorCodeOf(err)
				span.SetAttributes(tracer.StringAttr(tracer.AttrCommandCode, string(result.Code)))
			}
			return result, nil
		},
	)
}

// RegisterFileCommands registers read_all_text and file_exists on r.
func RegisterFileCommands(r *Registry, h *Handler, logger *slog.Logger) error {
	if err := r.Register(NewReadAllTextCommand(h, logger)); err != nil {
		return err
	}
	return r.Register(NewFileExistsCommand(h, logger))
}
