package domain

import (
	"errors"
	"fmt"
)

// Failure-kind sentinels surfaced by the file commands.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrIsADirectory     = fmt.Errorf("is a directory")
	ErrInvalidEncoding  = fmt.Errorf("invalid encoding: not valid UTF-8 text")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrIO               = fmt.Errorf("i/o error")
	ErrTimeout          = fmt.Errorf("operation timed out")
)

// Sentinel errors for the command and boundary layers.
var (
	ErrCommandNotFound    = fmt.Errorf("command not found")
	ErrCommandDuplicate   = fmt.Errorf("command already registered")
	ErrPathOutsideSandbox = fmt.Errorf("path is outside sandbox boundary")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrDecryption         = fmt.Errorf("decryption failed")
	ErrRateLimit          = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid        = fmt.Errorf("authentication failed")
	ErrAuditWrite         = fmt.Errorf("audit log write failed")

	// Gateway / RPC errors.
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Handler.ReadAllText")
	Err    error  // underlying sentinel
	Detail string // human-readable detail, usually the path
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable failure kind reported across the boundary.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodePermissionDenied   ErrorCode = "PERMISSION_DENIED"
	CodeIsADirectory       ErrorCode = "IS_A_DIRECTORY"
	CodeInvalidEncoding    ErrorCode = "INVALID_ENCODING"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeIO                 ErrorCode = "IO_ERROR"
	CodeTimeout            ErrorCode = "TIMEOUT"
	CodeCommandNotFound    ErrorCode = "COMMAND_NOT_FOUND"
	CodeCommandDuplicate   ErrorCode = "COMMAND_DUPLICATE"
	CodePathOutsideSandbox ErrorCode = "PATH_OUTSIDE_SANDBOX"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeAuditWrite         ErrorCode = "AUDIT_WRITE"
	CodeGatewayAuth        ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound  ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload  ErrorCode = "RPC_INVALID_PAYLOAD"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:           CodeNotFound,
	ErrPermissionDenied:   CodePermissionDenied,
	ErrIsADirectory:       CodeIsADirectory,
	ErrInvalidEncoding:    CodeInvalidEncoding,
	ErrInvalidInput:       CodeInvalidInput,
	ErrIO:                 CodeIO,
	ErrTimeout:            CodeTimeout,
	ErrCommandNotFound:    CodeCommandNotFound,
	ErrCommandDuplicate:   CodeCommandDuplicate,
	ErrPathOutsideSandbox: CodePathOutsideSandbox,
	ErrConfigLoad:         CodeConfigLoad,
	ErrDecryption:         CodeDecryption,
	ErrRateLimit:          CodeRateLimit,
	ErrGatewayAuthFailed:  CodeGatewayAuth,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrAuditWrite:         CodeAuditWrite,
	ErrRPCMethodNotFound:  CodeRPCMethodNotFound,
	ErrRPCInvalidPayload:  CodeRPCInvalidPayload,
}

// codeOrder fixes the errors.Is walk order so that wrapping sentinels
// (ErrGatewayAuthFailed wraps ErrAuthInvalid) resolve to the most specific code.
var codeOrder = []error{
	ErrNotFound,
	ErrPermissionDenied,
	ErrIsADirectory,
	ErrInvalidEncoding,
	ErrInvalidInput,
	ErrPathOutsideSandbox,
	ErrCommandNotFound,
	ErrCommandDuplicate,
	ErrTimeout,
	ErrConfigLoad,
	ErrDecryption,
	ErrRateLimit,
	ErrGatewayAuthFailed,
	ErrAuthInvalid,
	ErrAuditWrite,
	ErrRPCMethodNotFound,
	ErrRPCInvalidPayload,
	ErrIO,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for _, sentinel := range codeOrder {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
