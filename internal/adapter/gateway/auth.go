package gateway

import (
	"crypto/subtle"
	"fmt"

	"fsbridge/internal/domain"
	"fsbridge/internal/infra/config"
)

// ClientInfo holds metadata about an authenticated gateway client.
type ClientInfo struct {
	Name string
}

// Authenticator validates incoming gateway connections.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

// NoAuth accepts every connection. Combined with the loopback-only origin
// policy it is meant for a front-end on the same host.
type NoAuth struct{}

func (NoAuth) Authenticate(string) (*ClientInfo, error) {
	return &ClientInfo{Name: "anonymous"}, nil
}

type authEntry struct {
	token []byte
	info  ClientInfo
}

// StaticTokenAuth authenticates clients against a static token list
// using constant-time comparison to prevent timing attacks.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from configured tokens.
func NewStaticTokenAuth(tokens []config.TokenConfig) *StaticTokenAuth {
	a := &StaticTokenAuth{
		entries: make([]authEntry, len(tokens)),
	}
	for i, t := range tokens {
		a.entries[i] = authEntry{
			token: []byte(t.Token),
			info:  ClientInfo{Name: t.Name},
		}
	}
	return a
}

// Authenticate returns client info if the token is valid.
// Every entry is compared so the time taken does not depend on which one matched.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	tokenBytes := []byte(token)
	var match *ClientInfo
	for i := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, s.entries[i].token) == 1 && match == nil {
			info := s.entries[i].info
			match = &info
		}
	}
	if match == nil {
		return nil, domain.ErrGatewayAuthFailed
	}
	return match, nil
}

// NewAuthenticator builds the authenticator selected by cfg.Type.
func NewAuthenticator(cfg config.AuthConfig) (Authenticator, error) {
	switch cfg.Type {
	case "", "none":
		return NoAuth{}, nil
	case "static":
		return NewStaticTokenAuth(cfg.Tokens), nil
	default:
		return nil, fmt.Errorf("gateway: unknown auth type %q", cfg.Type)
	}
}
