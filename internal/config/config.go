package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources   []Source  `yaml:"sources"`
	Ingest    Ingest    `yaml:"ingest"`
	Recommend Recommend `yaml:"recommend"`
	Taxonomy  Taxonomy  `yaml:"taxonomy"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

// Source kinds.
const (
	KindHTML = "html"
	KindFeed = "feed"
)

// Source is an index page (or feed) that lists article links.
type Source struct {
	Name          string `yaml:"name"`
	IndexURL      string `yaml:"index_url"`
	Kind          string `yaml:"kind"` // "html" or "feed"
	TitleSelector string `yaml:"title_selector"`
	BodySelector  string `yaml:"body_selector"`
}

type Ingest struct {
	Concurrency       int      `yaml:"concurrency"`
	Attempts          int      `yaml:"attempts"`
	AttemptTimeout    Duration `yaml:"attempt_timeout"`
	BackoffInitial    Duration `yaml:"backoff_initial"`
	BackoffMax        Duration `yaml:"backoff_max"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	RespectRobots     bool     `yaml:"respect_robots"`
	UserAgent         string   `yaml:"user_agent"`
}

type Recommend struct {
	ContentWeight       float64 `yaml:"content_weight"`
	CollaborativeWeight float64 `yaml:"collaborative_weight"`
	TopN                int     `yaml:"top_n"`
}

type Taxonomy struct {
	Path string `yaml:"path"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a time.Duration that unmarshals from strings like "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ConfigDir returns the XDG config directory for newsrank.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "newsrank")
}

// DataDir returns the XDG data directory for newsrank.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "newsrank")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/newsrank/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'newsrank init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Ingest: Ingest{
			Concurrency:       10,
			Attempts:          3,
			AttemptTimeout:    Duration(5 * time.Second),
			BackoffInitial:    Duration(250 * time.Millisecond),
			BackoffMax:        Duration(2 * time.Second),
			RequestsPerSecond: 5,
			RespectRobots:     true,
			UserAgent:         "newsrank/1.0 (news recommender)",
		},
		Recommend: Recommend{
			ContentWeight:       0.5,
			CollaborativeWeight: 0.5,
			TopN:                5,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info", Format: "console"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	for i := range cfg.Sources {
		if cfg.Sources[i].Kind == "" {
			cfg.Sources[i].Kind = KindHTML
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Ingest.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("ingest.concurrency must be >= 1, got %d", c.Ingest.Concurrency))
	}
	if c.Ingest.Attempts < 1 {
		errs = append(errs, fmt.Errorf("ingest.attempts must be >= 1, got %d", c.Ingest.Attempts))
	}
	if c.Ingest.AttemptTimeout <= 0 {
		errs = append(errs, errors.New("ingest.attempt_timeout must be positive"))
	}
	if c.Recommend.ContentWeight < 0 || c.Recommend.CollaborativeWeight < 0 {
		errs = append(errs, errors.New("recommend weights must be non-negative"))
	}
	for _, s := range c.Sources {
		if s.IndexURL == "" {
			errs = append(errs, fmt.Errorf("source %q has no index_url", s.Name))
		}
		if s.Kind != KindHTML && s.Kind != KindFeed {
			errs = append(errs, fmt.Errorf("source %q: unknown kind %q", s.Name, s.Kind))
		}
	}
	return errors.Join(errs...)
}

// FindSource returns the source with the given name.
func (c *Config) FindSource(name string) (Source, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
