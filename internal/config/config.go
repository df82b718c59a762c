package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/san-kum/regime/internal/engine"
	"github.com/san-kum/regime/internal/eos"
	"github.com/san-kum/regime/internal/grid"
	"gopkg.in/yaml.v3"
)

const (
	DefaultEvaluator = "ideal"
	DefaultColumns   = 96
	DefaultRows      = 48
	DefaultLogTMin   = 3.0
	DefaultLogTMax   = 9.0
	DefaultLogRhoMin = -10.0
	DefaultLogRhoMax = 8.0
	DefaultAddr      = ":8080"
	DefaultDataDir   = ".regime"
)

var ErrUnknownPreset = errors.New("config: unknown preset")

type Config struct {
	Evaluator string        `yaml:"evaluator"`
	Grid      grid.Params   `yaml:"grid"`
	Engine    engine.Config `yaml:"engine"`
	Log       LogConfig     `yaml:"log"`
	Server    ServerConfig  `yaml:"server"`
	DataDir   string        `yaml:"data_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		Evaluator: DefaultEvaluator,
		Grid: grid.Params{
			LogTMin:     DefaultLogTMin,
			LogTMax:     DefaultLogTMax,
			LogRhoMin:   DefaultLogRhoMin,
			LogRhoMax:   DefaultLogRhoMax,
			Columns:     DefaultColumns,
			Rows:        DefaultRows,
			Composition: eos.Composition{X: 0.7, Y: 0.28, Z: 0.02},
		},
		Engine:  engine.DefaultConfig(),
		Log:     LogConfig{Level: "info", Format: "text"},
		Server:  ServerConfig{Addr: DefaultAddr},
		DataDir: DefaultDataDir,
	}
}

// Load reads path over the defaults, so a file only needs the keys it changes.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.Merge(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge overlays the keys present in path onto c.
func (c *Config) Merge(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyPreset replaces the grid section with the named preset.
func (c *Config) ApplyPreset(name string) error {
	p, err := GetPreset(name)
	if err != nil {
		return err
	}
	c.Grid = p.Grid
	return nil
}

// NewLogger builds a slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if l.Level != "" {
		if err := level.UnmarshalText([]byte(l.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", l.Level, err)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(l.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q: want text or json", l.Format)
	}
}
