// Package config loads morgisync configuration from YAML or TOML.
//
// The raw document is validated against an embedded CUE schema before it is
// decoded, so unknown keys and malformed values are reported with their path
// instead of being silently ignored.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "morgisync.yaml"

// Defaults.
const (
	DefaultServer         = "http://127.0.0.1:8000"
	DefaultRequestTimeout = 10 * time.Second
	DefaultLogLevel       = "info"
	DefaultLivePath       = "/ws"
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
)

// Config is the resolved configuration.
type Config struct {
	Server         string     `yaml:"server" toml:"server"`
	RequestTimeout Duration   `yaml:"request_timeout" toml:"request_timeout"`
	LogLevel       string     `yaml:"log_level" toml:"log_level"`
	Journal        *string    `yaml:"journal" toml:"journal"`
	Live           LiveConfig `yaml:"live" toml:"live"`
}

// LiveConfig configures the live channel.
type LiveConfig struct {
	Path           string   `yaml:"path" toml:"path"`
	InitialBackoff Duration `yaml:"initial_backoff" toml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff" toml:"max_backoff"`
}

// Duration is a time.Duration written as a Go duration string ("500ms").
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats d as a duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ValidationError reports a document that does not match the schema.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	journal := DefaultJournalPath()
	return &Config{
		Server:         DefaultServer,
		RequestTimeout: Duration(DefaultRequestTimeout),
		LogLevel:       DefaultLogLevel,
		Journal:        &journal,
		Live: LiveConfig{
			Path:           DefaultLivePath,
			InitialBackoff: Duration(DefaultInitialBackoff),
			MaxBackoff:     Duration(DefaultMaxBackoff),
		},
	}
}

// DefaultJournalPath returns ~/.local/share/morgisync/journal.db, or a
// relative path when the home directory is unknown.
func DefaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".morgisync", "journal.db")
	}
	return filepath.Join(home, ".local", "share", "morgisync", "journal.db")
}

// Load reads the config at path. An empty path loads DefaultFile from the
// working directory if it exists, and the defaults otherwise.
func Load(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(DefaultFile); errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Path = path
			return nil, ve
		}
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Format is a config file syntax.
type Format int

const (
	YAML Format = iota
	TOML
)

func formatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return TOML
	}
	return YAML
}

// Parse validates and decodes a config document. Missing fields take their
// defaults.
func Parse(data []byte, format Format) (*Config, error) {
	raw := map[string]any{}
	if err := unmarshal(data, format, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, &ValidationError{Path: "<input>", Err: err}
	}

	cfg := Default()
	if err := unmarshal(data, format, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Live.MaxBackoff < cfg.Live.InitialBackoff {
		return nil, &ValidationError{
			Path: "<input>",
			Err:  fmt.Errorf("live.max_backoff %s is below live.initial_backoff %s", cfg.Live.MaxBackoff.Std(), cfg.Live.InitialBackoff.Std()),
		}
	}
	if cfg.Journal != nil {
		expanded := expandHome(*cfg.Journal)
		cfg.Journal = &expanded
	}
	return cfg, nil
}

func unmarshal(data []byte, format Format, out any) error {
	switch format {
	case TOML:
		_, err := toml.NewDecoder(bytes.NewReader(data)).Decode(out)
		return err
	default:
		return yaml.Unmarshal(data, out)
	}
}

// validate unifies the raw document with #Config.
func validate(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return err
	}
	return def.Unify(doc).Validate(cue.Concrete(true))
}

// JournalPath returns the journal database path, or "" when journaling is
// disabled.
func (c *Config) JournalPath() string {
	if c.Journal == nil {
		return ""
	}
	return *c.Journal
}

// SetJournal overrides the journal path.
func (c *Config) SetJournal(path string) {
	expanded := expandHome(path)
	c.Journal = &expanded
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
