package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateCommands(cfg, ve)
	validateGateway(cfg, ve)
	validateMCP(cfg, ve)
	validateProbe(cfg, ve)
	validateAudit(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateCommands(cfg *Config, ve *ValidationError) {
	if strings.ContainsRune(cfg.Commands.BaseDir, 0) {
		ve.Add("commands.base_dir must not contain NUL bytes")
	}
	if strings.ContainsRune(cfg.Commands.SandboxRoot, 0) {
		ve.Add("commands.sandbox_root must not contain NUL bytes")
	}
}

var validAuthTypes = map[string]bool{
	"":       true,
	"none":   true,
	"static": true,
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
	} else if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}

	auth := cfg.Gateway.Auth
	if !validAuthTypes[auth.Type] {
		ve.Add("gateway.auth.type %q is invalid (want none or static)", auth.Type)
	}
	if auth.Type == "static" {
		if len(auth.Tokens) == 0 {
			ve.Add("gateway.auth.tokens must not be empty when auth type is static")
		}
		seen := make(map[string]bool, len(auth.Tokens))
		for i, tok := range auth.Tokens {
			if tok.Token == "" {
				ve.Add("gateway.auth.tokens[%d].token must not be empty", i)
			}
			if tok.Name == "" {
				ve.Add("gateway.auth.tokens[%d].name must not be empty", i)
			} else if seen[tok.Name] {
				ve.Add("gateway.auth.tokens[%d].name %q is duplicated", i, tok.Name)
			}
			seen[tok.Name] = true
		}
	}

	rl := cfg.Gateway.RateLimit
	if rl.RequestsPerSecond < 0 {
		ve.Add("gateway.rate_limit.requests_per_second must be >= 0")
	}
	if rl.RequestsPerSecond > 0 && rl.Burst <= 0 {
		ve.Add("gateway.rate_limit.burst must be > 0 when rate limiting is enabled")
	}

	for i, origin := range cfg.Gateway.AllowedOrigins {
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			ve.Add("gateway.allowed_origins[%d] %q must be an origin like scheme://host", i, origin)
		}
	}
}

func validateMCP(cfg *Config, ve *ValidationError) {
	if cfg.MCP.Name == "" {
		ve.Add("mcp.name must not be empty")
	}
	if cfg.MCP.Version == "" {
		ve.Add("mcp.version must not be empty")
	}
}

func validateProbe(cfg *Config, ve *ValidationError) {
	if cfg.Probe.Attempts <= 0 {
		ve.Add("probe.attempts must be > 0")
	}
	if cfg.Probe.Interval <= 0 {
		ve.Add("probe.interval must be > 0")
	}
	if cfg.Probe.URL != "" {
		if u, err := url.Parse(cfg.Probe.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			ve.Add("probe.url %q must be an http(s) URL", cfg.Probe.URL)
		}
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if cfg.Audit.MaxAge < 0 {
		ve.Add("audit.max_age must be >= 0")
	}
	if strings.HasPrefix(strings.TrimSpace(cfg.Audit.MaxSize), "-") {
		ve.Add("audit.max_size must not be negative")
	}
	if s := cfg.Audit.RetentionSchedule; s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			ve.Add("audit.retention_schedule %q is invalid: %v", s, err)
		}
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validLogFormats = map[string]bool{"text": true, "json": true, "auto": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want debug, info, warn or error)", cfg.Logger.Level)
	}
	if !validLogFormats[cfg.Logger.Format] {
		ve.Add("logger.format %q is invalid (want text, json or auto)", cfg.Logger.Format)
	}
}

var validExporters = map[string]bool{"noop": true, "stdout": true}

func validateTracer(cfg *Config, ve *ValidationError) {
	if cfg.Tracer.Enabled && !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want noop or stdout)", cfg.Tracer.Exporter)
	}
}
