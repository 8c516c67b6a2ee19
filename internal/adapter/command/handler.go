package command

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"unicode/utf8"

	"fsbridge/internal/domain"
	"fsbridge/internal/security"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Handler implements the host-side file commands. It keeps no state between
// calls: every invocation resolves its path, performs one filesystem call and
// returns.
type Handler struct {
	backend FilesystemBackend
	sandbox *security.Sandbox
	baseDir string
	logger  *slog.Logger
}

var _ domain.FileCommands = (*Handler)(nil)

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithBaseDir resolves relative paths against dir instead of the process
// working directory.
func WithBaseDir(dir string) HandlerOption {
	return func(h *Handler) { h.baseDir = dir }
}

// WithSandbox confines every path to the sandbox root.
func WithSandbox(sb *security.Sandbox) HandlerOption {
	return func(h *Handler) { h.sandbox = sb }
}

// NewHandler creates a Handler over backend.
func NewHandler(backend FilesystemBackend, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{backend: backend, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ReadOptions tunes ReadText.
type ReadOptions struct {
	// StripBOM drops a leading UTF-8 byte order mark after validation.
	StripBOM bool
}

// ReadAllText returns the full contents of path as UTF-8 text, byte for byte.
func (h *Handler) ReadAllText(ctx context.Context, path string) (string, error) {
	return h.ReadText(ctx, path, ReadOptions{})
}

// ReadText is ReadAllText with options. Failures are *domain.DomainError
// values wrapping one of the taxonomy sentinels.
func (h *Handler) ReadText(ctx context.Context, path string, opts ReadOptions) (string, error) {
	const op = "Handler.ReadAllText"

	if err := ctx.Err(); err != nil {
		return "", domain.NewDomainError(op, domain.ErrTimeout, err.Error())
	}

	resolved, err := h.resolve(path)
	if err != nil {
		return "", classifyFSError(op, path, err)
	}

	data, err := h.backend.ReadFile(resolved)
	if err != nil {
		return "", classifyFSError(op, path, err)
	}

	if !utf8.Valid(data) {
		return "", domain.NewDomainError(op, domain.ErrInvalidEncoding, path)
	}
	if opts.StripBOM {
		data = bytes.TrimPrefix(data, utf8BOM)
	}

	h.logger.Debug("read_all_text", "backend", h.backend.Name(), "size", len(data))
	return string(data), nil
}

// FileExists reports whether an entry exists at path, following symlinks.
// Every failure, including a sandbox violation, reports false.
func (h *Handler) FileExists(ctx context.Context, path string) bool {
	exists, _ := h.fileExistsDetailed(ctx, path)
	return exists
}

// fileExistsDetailed is FileExists plus the reason a path was never
// stat'ed: a cancelled context or a path the sandbox rejected. A missing
// or unreadable entry is an ordinary false with a nil error.
func (h *Handler) fileExistsDetailed(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.NewDomainError("Handler.FileExists", domain.ErrTimeout, err.Error())
	}

	resolved, err := h.resolve(path)
	if err != nil {
		return false, err
	}

	_, err = h.backend.Stat(resolved)
	return err == nil, nil
}

// resolve applies the optional base directory and sandbox. With neither
// configured the path is returned unchanged.
func (h *Handler) resolve(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if h.baseDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(h.baseDir, path)
	}
	if h.sandbox != nil {
		return h.sandbox.ValidatePath(path)
	}
	return path, nil
}
