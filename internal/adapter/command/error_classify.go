package command

import (
	"context"
	"errors"
	"io/fs"
	"syscall"

	"fsbridge/internal/domain"
)

// classifyFSError maps an OS-level failure onto the command error taxonomy.
// Errors that already carry a domain sentinel are returned unchanged.
func classifyFSError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if domain.ErrorCodeOf(err) != domain.CodeUnknown {
		return err
	}
	return domain.NewDomainError(op, fsSentinel(err), path)
}

func fsSentinel(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return domain.ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return domain.ErrPermissionDenied
	case errors.Is(err, syscall.EISDIR):
		return domain.ErrIsADirectory
	case errors.Is(err, syscall.EINVAL), errors.Is(err, syscall.ENAMETOOLONG):
		return domain.ErrInvalidInput
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.ErrTimeout
	default:
		return domain.ErrIO
	}
}
