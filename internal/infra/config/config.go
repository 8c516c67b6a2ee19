package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"fsbridge/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Includes []string       `yaml:"includes,omitempty" toml:"includes,omitempty"`
	Commands CommandsConfig `yaml:"commands" toml:"commands"`
	Gateway  GatewayConfig  `yaml:"gateway" toml:"gateway"`
	MCP      MCPConfig      `yaml:"mcp" toml:"mcp"`
	Probe    ProbeConfig    `yaml:"probe" toml:"probe"`
	Audit    AuditConfig    `yaml:"audit" toml:"audit"`
	Logger   LoggerConfig   `yaml:"logger" toml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer" toml:"tracer"`
}

// CommandsConfig controls how command paths are resolved.
// Both fields are opt-in; when empty, paths are used exactly as given.
type CommandsConfig struct {
	BaseDir     string `yaml:"base_dir" toml:"base_dir"`         // relative paths resolve here instead of the cwd
	SandboxRoot string `yaml:"sandbox_root" toml:"sandbox_root"` // confine every path to this tree
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	Enabled        bool            `yaml:"enabled" toml:"enabled"`
	Addr           string          `yaml:"addr" toml:"addr"`
	Auth           AuthConfig      `yaml:"auth" toml:"auth"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	AllowedOrigins []string        `yaml:"allowed_origins,omitempty" toml:"allowed_origins,omitempty"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type" toml:"type"` // "none" or "static"
	Tokens []TokenConfig `yaml:"tokens,omitempty" toml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token" toml:"token"`
	Name  string `yaml:"name" toml:"name"`
}

// RateLimitConfig configures the per-IP token bucket on HTTP routes.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// MCPConfig holds the identity advertised by the MCP stdio server.
type MCPConfig struct {
	Name    string `yaml:"name" toml:"name"`
	Version string `yaml:"version" toml:"version"`
}

// ProbeConfig controls how clients wait for a starting gateway.
type ProbeConfig struct {
	URL      string        `yaml:"url" toml:"url"`
	Attempts int           `yaml:"attempts" toml:"attempts"`
	Interval time.Duration `yaml:"interval" toml:"interval"`
}

// AuditConfig enables the JSONL command audit trail. Empty Path disables it.
// RetentionSchedule is a standard five-field cron expression; long-running
// subcommands re-apply MaxAge and MaxSize on it. Empty disables the schedule.
type AuditConfig struct {
	Path              string        `yaml:"path" toml:"path"`
	MaxAge            time.Duration `yaml:"max_age" toml:"max_age"`
	MaxSize           string        `yaml:"max_size" toml:"max_size"` // e.g. "10MB"
	RetentionSchedule string        `yaml:"retention_schedule" toml:"retention_schedule"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // text, json, auto
	Output string `yaml:"output" toml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Exporter string `yaml:"exporter" toml:"exporter"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8090",
			Auth:    AuthConfig{Type: "none"},
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 20,
				Burst:             40,
			},
		},
		MCP: MCPConfig{
			Name:    "fsbridge",
			Version: "0.1.0",
		},
		Probe: ProbeConfig{
			URL:      "http://127.0.0.1:8090/healthz",
			Attempts: 10,
			Interval: 500 * time.Millisecond,
		},
		Audit: AuditConfig{
			RetentionSchedule: "0 3 * * *", // 3 AM daily
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "auto",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML or TOML config file, applies env var overrides, and decrypts secrets.
// A missing file is not an error: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, domain.NewDomainError("config.Load", domain.ErrConfigLoad, err.Error())
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass: decode to get the includes list.
	if err := decode(absPath, data, cfg); err != nil {
		return nil, domain.NewDomainError("config.Load", domain.ErrConfigLoad, err.Error())
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Second pass: the main file takes precedence over includes.
		if err := decode(absPath, data, cfg); err != nil {
			return nil, domain.NewDomainError("config.Load", domain.ErrConfigLoad, err.Error())
		}
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("FSBRIDGE_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decode picks the decoder from the file extension. Anything that is not
// .toml is treated as YAML.
func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse toml %s: %w", filepath.Base(path), err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse yaml %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ApplyEnvOverrides maps FSBRIDGE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FSBRIDGE_COMMANDS_BASE_DIR"); v != "" {
		cfg.Commands.BaseDir = v
	}
	if v := os.Getenv("FSBRIDGE_COMMANDS_SANDBOX_ROOT"); v != "" {
		cfg.Commands.SandboxRoot = v
	}

	// Gateway overrides
	if v := os.Getenv("FSBRIDGE_GATEWAY_ENABLED"); v != "" {
		cfg.Gateway.Enabled = v == "true"
	}
	if v := os.Getenv("FSBRIDGE_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("FSBRIDGE_GATEWAY_AUTH_TYPE"); v != "" {
		cfg.Gateway.Auth.Type = v
	}
	if v := os.Getenv("FSBRIDGE_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{Name: "env", Token: v})
	}
	if v := os.Getenv("FSBRIDGE_GATEWAY_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Gateway.RateLimit.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("FSBRIDGE_GATEWAY_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("FSBRIDGE_GATEWAY_ALLOWED_ORIGINS"); v != "" {
		cfg.Gateway.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("FSBRIDGE_PROBE_URL"); v != "" {
		cfg.Probe.URL = v
	}
	if v := os.Getenv("FSBRIDGE_PROBE_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Probe.Attempts = n
		}
	}
	if v := os.Getenv("FSBRIDGE_PROBE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Probe.Interval = d
		}
	}

	if v := os.Getenv("FSBRIDGE_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}

	if v := os.Getenv("FSBRIDGE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("FSBRIDGE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("FSBRIDGE_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("FSBRIDGE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("FSBRIDGE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decryptSecrets decrypts every "enc:" prefixed secret in place.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.Gateway.Auth.Tokens {
		tok := cfg.Gateway.Auth.Tokens[i].Token
		if strings.HasPrefix(tok, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(tok, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("gateway auth token %s: %w", cfg.Gateway.Auth.Tokens[i].Name, err)
			}
			cfg.Gateway.Auth.Tokens[i].Token = decrypted
		}
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The result does not carry the "enc:" prefix.
func EncryptValue(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", fmt.Errorf("passphrase must not be empty")
	}

	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: invalid encrypted format", domain.ErrDecryption)
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: decode salt: %v", domain.ErrDecryption, err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", domain.ErrDecryption, err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", domain.ErrDecryption)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}

	return string(plaintext), nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Readable by others is fine; writable by group or others is not.
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
