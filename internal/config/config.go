// Package config provides configuration types, defaults, and persistence for tagsync.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/tagsync/internal/log"
)

// Config holds all configuration options for tagsync.
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Store    StoreConfig     `mapstructure:"store"`
	Document DocumentConfig  `mapstructure:"document"`
	Cache    CacheConfig     `mapstructure:"cache"`
	Export   ExportConfig    `mapstructure:"export"`
	Index    IndexConfig     `mapstructure:"index"`
	Assign   AssignConfig    `mapstructure:"assign"`
	Tracing  TracingConfig   `mapstructure:"tracing"`
	Log      LogConfig       `mapstructure:"log"`
	Flags    map[string]bool `mapstructure:"flags"`
}

// ServerConfig holds the HTTP/websocket transport settings.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`                // listen address, default "127.0.0.1:7777"
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"` // default 10s
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`       // per websocket frame, default 10s
	Heartbeat         time.Duration `mapstructure:"heartbeat"`           // SSE keepalive and websocket ping, default 30s
	SendBuffer        int           `mapstructure:"send_buffer"`         // queued snapshots per connection, default 64
}

// StoreConfig selects where registry and tag blobs are persisted.
type StoreConfig struct {
	// Driver is "sqlite" (default), "document" (inside the canvas YAML) or "memory".
	Driver string `mapstructure:"driver"`
	// Path is the SQLite database file. Default: ~/.config/tagsync/tagsync.db
	Path string `mapstructure:"path"`
	// Scope partitions one database between documents. Default: the absolute document path.
	Scope string `mapstructure:"scope"`
}

// DocumentConfig locates the YAML canvas document.
type DocumentConfig struct {
	Path          string        `mapstructure:"path"`
	Watch         bool          `mapstructure:"watch"`
	Debounce      time.Duration `mapstructure:"debounce"`
	ClipboardPath string        `mapstructure:"clipboard_path"`
}

// CacheConfig controls the read-through cache in front of the SQLite store.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// ExportConfig holds CSV export defaults.
type ExportConfig struct {
	Header string `mapstructure:"header"` // "node" (default) or "item"
	Scope  string `mapstructure:"scope"`  // "tagged" (default) or "all"
}

// IndexConfig selects which objects the Controller indexes.
type IndexConfig struct {
	Variant string `mapstructure:"variant"` // "tagged" (default) or "all"
}

// AssignConfig controls assign-tags behaviour.
type AssignConfig struct {
	UnknownObjects string `mapstructure:"unknown_objects"` // "skip" (default) or "create"
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/tagsync/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// LogConfig holds debug log settings. Logging stays off unless --debug or
// TAGSYNC_DEBUG is set.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info (default), warn, error
	Path  string `mapstructure:"path"`  // default: tagsync.log in the working directory
}

// DefaultConfigDir returns ~/.config/tagsync, or "" if the home dir is unavailable.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "tagsync")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// DefaultStorePath returns the default SQLite database path.
func DefaultStorePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return "tagsync.db"
	}
	return filepath.Join(dir, "tagsync.db")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:              "127.0.0.1:7777",
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      10 * time.Second,
			Heartbeat:         30 * time.Second,
			SendBuffer:        64,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   DefaultStorePath(),
		},
		Document: DocumentConfig{
			Path:     "canvas.yaml",
			Watch:    true,
			Debounce: 250 * time.Millisecond,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     10 * time.Minute,
		},
		Export: ExportConfig{
			Header: "node",
			Scope:  "tagged",
		},
		Index: IndexConfig{
			Variant: "tagged",
		},
		Assign: AssignConfig{
			UnknownObjects: "skip",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from config dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks every section and joins the problems found.
func Validate(cfg Config) error {
	return errors.Join(
		ValidateServer(cfg.Server),
		ValidateStore(cfg.Store),
		oneOf("export.header", cfg.Export.Header, "node", "item"),
		oneOf("export.scope", cfg.Export.Scope, "tagged", "all"),
		oneOf("index.variant", cfg.Index.Variant, "tagged", "all"),
		oneOf("assign.unknown_objects", cfg.Assign.UnknownObjects, "skip", "create"),
		oneOf("log.level", cfg.Log.Level, "debug", "info", "warn", "warning", "error"),
		ValidateTracing(cfg.Tracing),
	)
}

// ValidateServer checks transport configuration.
func ValidateServer(s ServerConfig) error {
	if s.WriteTimeout < 0 || s.ReadHeaderTimeout < 0 || s.Heartbeat < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if s.SendBuffer < 0 {
		return fmt.Errorf("server.send_buffer must not be negative, got %d", s.SendBuffer)
	}
	return nil
}

// ValidateStore checks store configuration. Empty values use defaults.
func ValidateStore(s StoreConfig) error {
	return oneOf("store.driver", s.Driver, "sqlite", "document", "memory")
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}
	if err := oneOf("tracing.exporter", tracing.Exporter, "none", "file", "stdout", "otlp"); err != nil {
		return err
	}

	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// oneOf accepts empty (meaning default) or one of allowed.
func oneOf(key, value string, allowed ...string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %q, got %q", key, allowed, value)
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# tagsync configuration

# Transport for connected views (websocket at /ws, SSE at /events)
server:
  addr: 127.0.0.1:7777
  read_header_timeout: 10s
  write_timeout: 10s        # per websocket frame
  heartbeat: 30s            # SSE keepalive / websocket ping interval
  send_buffer: 64           # snapshots queued per connection before it is dropped

# Where the tag registry and per-object tags are persisted
store:
  driver: sqlite            # sqlite, document (inside the canvas file) or memory
  # path: ~/.config/tagsync/tagsync.db
  # scope: my-design        # defaults to the document file name

# The canvas document (objects and selection)
document:
  path: canvas.yaml
  watch: true               # reload when the file changes on disk
  debounce: 250ms
  # clipboard_path: clipboard.csv

# Read-through cache in front of the sqlite store
cache:
  enabled: true
  ttl: 10m

export:
  header: node              # node: nodeId,nodeName,nodeType,tags  item: itemId,itemName,description,tags
  scope: tagged             # tagged or all

index:
  variant: tagged           # tagged: only objects with tags; all: every canvas object

assign:
  unknown_objects: skip     # skip (report) or create (stub object)

log:
  level: info
  # path: tagsync.log

# Feature flags
# flags:
#   adopt-orphans: true      # register tags found on objects but missing from the registry
#   debug-endpoints: true    # serve a live log stream at /debug/log

# Distributed tracing
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: localhost:4317
#   sample_rate: 0.1
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
