package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full storyline configuration.
type Config struct {
	Render  Render            `toml:"render"`
	Guard   Guard             `toml:"guard"`
	Log     Log               `toml:"log"`
	Storage Storage           `toml:"storage"`
	Theme   map[string]string `toml:"theme"`
}

// Render configures the renderer and the position translator.
type Render struct {
	// BatchSize is the number of highlights restored between yields.
	BatchSize int `toml:"batch_size"`

	// ContextWindow is the number of characters captured on each side of
	// a section highlight.
	ContextWindow int `toml:"context_window"`
}

// Guard configures edit protection.
type Guard struct {
	// CooldownMS is the minimum spacing of guidance messages.
	CooldownMS int `toml:"cooldown_ms"`

	// Message is the guidance shown when an edit is refused.
	Message string `toml:"message"`
}

// Log configures logging.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Path   string `toml:"path"`
}

// Storage configures the project database.
type Storage struct {
	Path string `toml:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Render: Render{
			BatchSize:     64,
			ContextWindow: 32,
		},
		Guard: Guard{
			CooldownMS: 3000,
			Message:    "Delete the section to edit this text.",
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
		Storage: Storage{
			Path: "storyline.db",
		},
		Theme: map[string]string{},
	}
}

// Cooldown returns the guard cooldown as a duration.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Guard.CooldownMS) * time.Millisecond
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return parse(path, data)
}

// LoadReader reads TOML from r over the defaults.
func LoadReader(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return parse("<reader>", data)
}

func parse(source string, data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		pe := &ParseError{Path: source, Message: err.Error(), Err: err}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			pe.Line, pe.Column = de.Position()
		}
		var sme *toml.StrictMissingError
		if errors.As(err, &sme) {
			pe.Message = sme.String()
		}
		return Config{}, pe
	}
	if cfg.Theme == nil {
		cfg.Theme = map[string]string{}
	}
	return cfg, nil
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Validate checks every setting and returns all failures joined.
func (c Config) Validate() error {
	var errs []error
	fail := func(path, msg string, v any) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: v})
	}

	if c.Render.BatchSize < 1 {
		fail("render.batch_size", "must be at least 1", c.Render.BatchSize)
	}
	if c.Render.ContextWindow < 1 || c.Render.ContextWindow > 1024 {
		fail("render.context_window", "must be between 1 and 1024", c.Render.ContextWindow)
	}
	if c.Guard.CooldownMS < 0 {
		fail("guard.cooldown_ms", "must not be negative", c.Guard.CooldownMS)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		fail("log.level", "must be debug, info, warn or error", c.Log.Level)
	}
	if !slices.Contains([]string{"console", "json"}, c.Log.Format) {
		fail("log.format", "must be console or json", c.Log.Format)
	}
	if c.Storage.Path == "" {
		fail("storage.path", "must not be empty", c.Storage.Path)
	}
	for class, hex := range c.Theme {
		if !hexColor.MatchString(hex) {
			fail("theme."+class, "must be a #rgb or #rrggbb color", hex)
		}
	}
	return errors.Join(errs...)
}
