package domain

import (
	"context"
	"encoding/json"
)

// CommandSchema describes a command for callers that discover the command surface.
type CommandSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ResultKind identifies which variant a CommandResult carries.
type ResultKind string

const (
	ResultText   ResultKind = "text"
	ResultExists ResultKind = "exists"
)

// CommandResult is the outcome of a successful command: either the text of a
// file or an existence flag. Failures travel as errors, never as results.
//
// Code records a failure the command absorbed into its result, such as a
// sandbox rejection behind a false file_exists. It never reaches callers;
// it only feeds command events and the audit trail.
type CommandResult struct {
	Kind   ResultKind `json:"kind"`
	Text   string     `json:"text,omitempty"`
	Exists bool       `json:"exists,omitempty"`
	Code   ErrorCode  `json:"-"`
}

// TextResult wraps file contents.
func TextResult(s string) CommandResult {
	return CommandResult{Kind: ResultText, Text: s}
}

// ExistsResult wraps an existence check.
func ExistsResult(b bool) CommandResult {
	return CommandResult{Kind: ResultExists, Exists: b}
}

// Value returns the bare wire value: a string for text results, a bool for
// existence results.
func (r CommandResult) Value() any {
	if r.Kind == ResultExists {
		return r.Exists
	}
	return r.Text
}

// Command is a named, externally invokable operation.
type Command interface {
	Name() string
	Description() string
	Schema() CommandSchema
	Execute(ctx context.Context, params json.RawMessage) (CommandResult, error)
}

// CommandInvoker abstracts command lookup and invocation for boundary adapters.
type CommandInvoker interface {
	Invoke(ctx context.Context, name string, params json.RawMessage) (CommandResult, error)
	Schemas() []CommandSchema
}

// FileCommands is the host-side file surface exposed to the front-end.
// Paths are passed through as given: relative paths resolve against the
// process working directory unless a base directory is configured.
type FileCommands interface {
	// ReadAllText returns the full contents of the named file as UTF-8 text.
	ReadAllText(ctx context.Context, path string) (string, error)
	// FileExists reports whether an entry exists at path. It never fails;
	// any error resolving the path reports false.
	FileExists(ctx context.Context, path string) bool
}
