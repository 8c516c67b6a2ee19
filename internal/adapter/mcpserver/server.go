// Package mcpserver exposes the registered commands as Model Context Protocol
// tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"fsbridge/internal/domain"
	"fsbridge/internal/infra/config"
)

// Server adapts a command invoker to an MCP server.
type Server struct {
	mcp     *server.MCPServer
	invoker domain.CommandInvoker
	logger  *slog.Logger
}

// New creates an MCP server with one tool per command schema.
func New(invoker domain.CommandInvoker, cfg config.MCPConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp: server.NewMCPServer(cfg.Name, cfg.Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		invoker: invoker,
		logger:  logger,
	}

	for _, schema := range invoker.Schemas() {
		tool := mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.Parameters)
		s.mcp.AddTool(tool, s.toolHandler(schema.Name))
		logger.Debug("mcp tool registered", "tool", schema.Name)
	}
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves JSON-RPC on in/out until ctx is cancelled or in is closed.
// Nothing else may write to out while it runs.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("mcp server listening on stdio")
	return stdio.Listen(ctx, in, out)
}

// toolHandler invokes the named command. Typed failures are reported as
// tool errors carrying "CODE: message", never as protocol errors.
func (s *Server) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := rawArguments(req)
		if err != nil {
			return mcp.NewToolResultError(formatFailure(err)), nil
		}

		result, err := s.invoker.Invoke(ctx, name, params)
		if err != nil {
			return mcp.NewToolResultError(formatFailure(err)), nil
		}
		return mcp.NewToolResultText(resultText(result)), nil
	}
}

func rawArguments(req mcp.CallToolRequest) (json.RawMessage, error) {
	args := req.GetRawArguments()
	if args == nil {
		return json.RawMessage("{}"), nil
	}
	if raw, ok := args.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, domain.NewDomainError("mcp.arguments", domain.ErrInvalidInput, err.Error())
	}
	return data, nil
}

func resultText(r domain.CommandResult) string {
	if r.Kind == domain.ResultExists {
		return strconv.FormatBool(r.Exists)
	}
	return r.Text
}

func formatFailure(err error) string {
	return fmt.Sprintf("%s: %s", domain.ErrorCodeOf(err), err.Error())
}
