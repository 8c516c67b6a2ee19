package bridgeclient

import (
	"errors"
	"fmt"
)

// Error codes reported by the gateway.
const (
	CodeNotFound           = "NOT_FOUND"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeIsADirectory       = "IS_A_DIRECTORY"
	CodeInvalidEncoding    = "INVALID_ENCODING"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeIO                 = "IO_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeCommandNotFound    = "COMMAND_NOT_FOUND"
	CodeMethodNotFound     = "RPC_METHOD_NOT_FOUND"
	CodeGatewayAuth        = "GATEWAY_AUTH"
	CodePathOutsideSandbox = "PATH_OUTSIDE_SANDBOX"
)

// RemoteError is a typed failure reported by the gateway.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the gateway error code carried by err, or "" when err is
// not a remote failure.
func CodeOf(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
