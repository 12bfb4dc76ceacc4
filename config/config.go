// Package config loads echoes settings from YAML or TOML files.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/TFMV/echoes/ingest"
	"github.com/TFMV/echoes/physics"
	"github.com/TFMV/echoes/render"
	"gopkg.in/yaml.v3"
)

// Config holds echoes configuration.
type Config struct {
	Physics PhysicsConfig `yaml:"physics" toml:"physics"`
	Render  RenderConfig  `yaml:"render" toml:"render"`
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Data    DataConfig    `yaml:"data" toml:"data"`
}

// PhysicsConfig selects the layout and its force constants.
type PhysicsConfig struct {
	Layout         string `yaml:"layout" toml:"layout"` // "force" or "surreal"
	physics.Config `yaml:",inline"`
}

// RenderConfig controls the canvas and export output.
type RenderConfig struct {
	Width           float64 `yaml:"width" toml:"width"`
	Height          float64 `yaml:"height" toml:"height"`
	PixelRatio      float64 `yaml:"pixel_ratio" toml:"pixel_ratio"`
	FrameIntervalMS int     `yaml:"frame_interval_ms" toml:"frame_interval_ms"`
	Palette         string  `yaml:"palette" toml:"palette"` // "default" or "surreal"
	ShowLabels      bool    `yaml:"show_labels" toml:"show_labels"`
	Timestamp       bool    `yaml:"timestamp" toml:"timestamp"`
	FontSize        float64 `yaml:"font_size" toml:"font_size"`
	HoverScale      float64 `yaml:"hover_scale" toml:"hover_scale"`
	LabelOffset     float64 `yaml:"label_offset" toml:"label_offset"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Port             int `yaml:"port" toml:"port"`
	StreamIntervalMS int `yaml:"stream_interval_ms" toml:"stream_interval_ms"` // websocket frame cap
	MaxSessions      int `yaml:"max_sessions" toml:"max_sessions"`
}

// DataConfig controls where concepts come from.
type DataConfig struct {
	APIURL  string `yaml:"api_url" toml:"api_url"`
	Offline bool   `yaml:"offline" toml:"offline"` // never contact the backend
	Strict  bool   `yaml:"strict" toml:"strict"`   // fail instead of falling back to offline datasets
	TopN    int    `yaml:"top_n" toml:"top_n"`
	File    string `yaml:"file" toml:"file"`   // load a dataset file instead of a concept
	Watch   bool   `yaml:"watch" toml:"watch"` // reload File when it changes
	Concept string `yaml:"concept" toml:"concept"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Physics: PhysicsConfig{Layout: "force", Config: physics.DefaultConfig()},
		Render: RenderConfig{
			Width:           800,
			Height:          400,
			PixelRatio:      1,
			FrameIntervalMS: 16,
			Palette:         "default",
			ShowLabels:      true,
			FontSize:        12,
			HoverScale:      1.2,
			LabelOffset:     15,
		},
		Server: ServerConfig{Port: 8080, StreamIntervalMS: 33, MaxSessions: 64},
		Data:   DataConfig{TopN: 10, Concept: "Freedom"},
	}
}

// FileNames are searched, in order, when no explicit path is given
var FileNames = []string{"echoes.yaml", "echoes.yml", "echoes.toml"}

// ConfigDir returns the echoes config directory path.
func ConfigDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "echoes")
}

// Find returns the first config file found in the working directory, then in
// ConfigDir. It returns "" when there is none.
func Find() string {
	for _, dir := range []string{".", ConfigDir()} {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// Load reads the config at path, or the first one Find returns when path is
// empty. Missing optional files yield the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = Find()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	if _, err := physics.GetLayoutAlgorithm(c.Physics.Layout, c.Physics.Config); err != nil {
		return err
	}
	if _, err := ingest.GetPalette(c.Render.Palette); err != nil {
		return err
	}
	if c.Physics.Damping < 0 || c.Physics.Damping > 1 {
		return fmt.Errorf("physics.damping must be within [0,1], got %v", c.Physics.Damping)
	}
	if c.Render.PixelRatio <= 0 {
		return fmt.Errorf("render.pixel_ratio must be positive")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Encode writes the config in the given format ("yaml" or "toml")
func (c *Config) Encode(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(c)
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return err
		}
		_, err := w.Write(buf.Bytes())
		return err
	default:
		return fmt.Errorf("unsupported config format: %s", format)
	}
}

// Save writes the config to path, choosing the format from its extension.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return cfg.Encode(f, strings.TrimPrefix(filepath.Ext(path), "."))
}

// FrameInterval returns the per-frame tick interval
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.Render.FrameIntervalMS) * time.Millisecond
}

// StreamInterval returns the minimum spacing of websocket frames
func (c *Config) StreamInterval() time.Duration {
	return time.Duration(c.Server.StreamIntervalMS) * time.Millisecond
}

// Palette returns the configured palette
func (c *Config) Palette() *ingest.Palette {
	p, err := ingest.GetPalette(c.Render.Palette)
	if err != nil {
		return ingest.DefaultPalette()
	}
	return p
}

// Style returns the canvas style for the configured palette
func (c *Config) Style() render.Style {
	style := c.Palette().Style()
	style.HoverScale = c.Render.HoverScale
	style.LabelOffset = c.Render.LabelOffset
	return style
}

// Layout builds the configured layout algorithm
func (c *Config) Layout() (physics.Layout, error) {
	return physics.GetLayoutAlgorithm(c.Physics.Layout, c.Physics.Config)
}

// OutputOptions returns export options for format
func (c *Config) OutputOptions(format string) *render.OutputOptions {
	opts := render.NewDefaultOptions(format)
	opts.Width = c.Render.Width
	opts.Height = c.Render.Height
	opts.PixelRatio = c.Render.PixelRatio
	opts.Style = c.Style()
	opts.FontSize = c.Render.FontSize
	opts.ShowLabels = c.Render.ShowLabels
	opts.Timestamp = c.Render.Timestamp
	return opts
}
