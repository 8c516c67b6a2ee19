package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Handler.ReadAllText", ErrNotFound, "./fixtures/missing.txt")
	want := "Handler.ReadAllText: ./fixtures/missing.txt: not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Registry.Invoke", ErrCommandNotFound, "")
	want := "Registry.Invoke: command not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Sandbox.ValidatePath", ErrPathOutsideSandbox, "/etc/passwd")
	if !errors.Is(err, ErrPathOutsideSandbox) {
		t.Error("errors.Is should match ErrPathOutsideSandbox")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := fmt.Errorf("gateway: %w", NewDomainError("Handler.ReadAllText", ErrIsADirectory, "/tmp"))
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.Op != "Handler.ReadAllText" {
		t.Errorf("Op = %q, want %q", de.Op, "Handler.ReadAllText")
	}
}

// --- ErrorCode tests ---

func TestErrorCodeOf_Taxonomy(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{ErrNotFound, CodeNotFound},
		{ErrPermissionDenied, CodePermissionDenied},
		{ErrIsADirectory, CodeIsADirectory},
		{ErrInvalidEncoding, CodeInvalidEncoding},
		{ErrInvalidInput, CodeInvalidInput},
		{ErrIO, CodeIO},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCodeOf(tt.err), "sentinel %v", tt.err)
	}
}

func TestErrorCodeOf_DomainError(t *testing.T) {
	err := NewDomainError("Handler.ReadAllText", ErrInvalidEncoding, "bin.dat")
	assert.Equal(t, CodeInvalidEncoding, ErrorCodeOf(err))
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", NewDomainError("op", ErrPermissionDenied, "x"))
	assert.Equal(t, CodePermissionDenied, ErrorCodeOf(wrapped))
}

func TestErrorCodeOf_PrefersSpecificWrappingSentinel(t *testing.T) {
	wrapped := fmt.Errorf("handshake: %w", ErrGatewayAuthFailed)
	assert.Equal(t, CodeGatewayAuth, ErrorCodeOf(wrapped))
}

func TestErrorCodeOf_UnknownError(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("some random error")))
}

func TestErrorCodeOf_Nil(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestDomainError_Code(t *testing.T) {
	err := NewDomainError("Registry.Invoke", ErrCommandNotFound, "read_file")
	assert.Equal(t, CodeCommandNotFound, err.Code())
}

func TestDomainError_CodeUnknownSentinel(t *testing.T) {
	err := NewDomainError("Op", fmt.Errorf("custom"), "detail")
	assert.Equal(t, CodeUnknown, err.Code())
}

func TestWrapOp(t *testing.T) {
	require.NoError(t, WrapOp("op", nil))

	err := WrapOp("config.Load", ErrConfigLoad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigLoad)
	assert.Equal(t, "config.Load: failed to load configuration", err.Error())
}
