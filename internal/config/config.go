// internal/config/config.go
//
// This package handles configuration and the .pipedeck directory structure.
// Every project that runs pipedeck gets a .pipedeck/ folder created in its
// working directory for the config file and the run logbook.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// PipedeckDir is the name of the directory we create in each project.
	PipedeckDir = ".pipedeck"

	// ConfigFileName is the project config file inside PipedeckDir.
	ConfigFileName = "config.yaml"

	// LogFileName is the run logbook inside PipedeckDir/logs.
	LogFileName = "pipedeck.log"
)

const defaultProjectConfigYAML = `# pipedeck project configuration
version: 1

pipeline:
  # Milliseconds between progression ticks.
  tick_interval_ms: 250
  # Backlog counter the session starts with.
  initial_queue: 4

  # Ordered stages every turn progresses through. Stages marked actor: true
  # get an actor label from the roster below at each turn rollover.
  stages:
    - id: intake
      name: Intake
    - id: context
      name: Context Assembly
    - id: generation
      name: Generation
      actor: true
    - id: review
      name: Review
      actor: true
    - id: publish
      name: Publish

  # Actor roster rotated across actor-bearing stages turn by turn.
  actors:
    - aria
    - bram
    - celeste

  # Bounds for the randomized per-tick progress increment (percent).
  increment:
    min: 5
    max: 25
    initial_max: 10

  # Backlog churn applied at each turn rollover.
  queue:
    max_drain: 2
    max_arrivals: 3

bridge:
  enabled: true
  host: 127.0.0.1
  port: 8766
`

// StageRef declares one stage entry inside .pipedeck/config.yaml.
type StageRef struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name,omitempty"`
	Actor bool   `yaml:"actor,omitempty"`
}

// IncrementConfig bounds the randomized progress increment policy.
type IncrementConfig struct {
	Min        float64 `yaml:"min"`
	Max        float64 `yaml:"max"`
	InitialMax float64 `yaml:"initial_max"`
}

// QueueConfig bounds the randomized rollover queue adjustment.
type QueueConfig struct {
	MaxDrain    int `yaml:"max_drain"`
	MaxArrivals int `yaml:"max_arrivals"`
}

// PipelineConfig captures the progression engine settings.
type PipelineConfig struct {
	TickIntervalMS int             `yaml:"tick_interval_ms"`
	InitialQueue   int             `yaml:"initial_queue"`
	Stages         []StageRef      `yaml:"stages"`
	Actors         []string        `yaml:"actors,omitempty"`
	Increment      IncrementConfig `yaml:"increment"`
	Queue          QueueConfig     `yaml:"queue"`
}

// BridgeConfig captures the loopback control/query HTTP server settings.
type BridgeConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// ProjectConfig models .pipedeck/config.yaml.
type ProjectConfig struct {
	Version  int            `yaml:"version"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Bridge   BridgeConfig   `yaml:"bridge"`
}

// Config holds the runtime configuration for pipedeck.
type Config struct {
	// ProjectDir is the directory where the user ran `pipedeck` from.
	ProjectDir string

	// PipedeckProjectDir is ProjectDir/.pipedeck.
	PipedeckProjectDir string

	Project ProjectConfig
}

// InitPipedeckDir creates the .pipedeck directory structure in the given
// project directory and seeds the default config file when missing.
func InitPipedeckDir(projectDir string) error {
	pipedeckDir := filepath.Join(projectDir, PipedeckDir)
	if err := os.MkdirAll(filepath.Join(pipedeckDir, "logs"), 0o755); err != nil {
		return err
	}
	return ensureProjectConfig(filepath.Join(pipedeckDir, ConfigFileName))
}

// NewConfig creates a Config populated from .pipedeck/config.yaml, falling
// back to embedded defaults when the file does not exist. Validation failures
// are fatal: the engine refuses to start with an empty stage list or a
// non-positive tick interval rather than run with undefined semantics.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:         projectDir,
		PipedeckProjectDir: filepath.Join(projectDir, PipedeckDir),
		Project:            defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(cfg.ProjectConfigPath()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfigFromFile loads configuration from an explicit path instead of the
// project's .pipedeck directory. The file must exist.
func NewConfigFromFile(projectDir, path string) (*Config, error) {
	cfg := &Config{
		ProjectDir:         projectDir,
		PipedeckProjectDir: filepath.Join(projectDir, PipedeckDir),
		Project:            defaultProjectConfig(),
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := cfg.applyProjectConfig(path, data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.PipedeckProjectDir, ConfigFileName)
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.PipedeckProjectDir, "logs")
}

// LogPath returns the run logbook location.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogsDir(), LogFileName)
}

// TickInterval returns the configured tick cadence.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Project.Pipeline.TickIntervalMS) * time.Millisecond
}

// Actors returns the configured actor roster.
func (c *Config) Actors() []string {
	return c.Project.Pipeline.Actors
}

// BridgeEnabled reports whether the control/query HTTP bridge should run.
func (c *Config) BridgeEnabled() bool {
	if c.Project.Bridge.Enabled == nil {
		return true
	}
	return *c.Project.Bridge.Enabled
}

func (c *Config) loadProjectConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	return c.applyProjectConfig(path, data)
}

func (c *Config) applyProjectConfig(path string, data []byte) error {
	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	var parsed ProjectConfig
	// The embedded default text is static, so a parse failure here is a
	// programming error rather than a runtime condition.
	if err := yaml.Unmarshal([]byte(defaultProjectConfigYAML), &parsed); err != nil {
		panic(fmt.Sprintf("config: default config is invalid: %v", err))
	}
	return parsed
}

func (pc *ProjectConfig) applyDefaults() {
	defaults := defaultProjectConfig()
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Pipeline.TickIntervalMS == 0 {
		pc.Pipeline.TickIntervalMS = defaults.Pipeline.TickIntervalMS
	}
	if len(pc.Pipeline.Stages) == 0 {
		pc.Pipeline.Stages = defaults.Pipeline.Stages
	}
	if pc.Pipeline.Increment == (IncrementConfig{}) {
		pc.Pipeline.Increment = defaults.Pipeline.Increment
	}
	if pc.Pipeline.Queue == (QueueConfig{}) {
		pc.Pipeline.Queue = defaults.Pipeline.Queue
	}
}

func (pc *ProjectConfig) normalize() {
	for i := range pc.Pipeline.Stages {
		pc.Pipeline.Stages[i].ID = strings.TrimSpace(pc.Pipeline.Stages[i].ID)
		pc.Pipeline.Stages[i].Name = strings.TrimSpace(pc.Pipeline.Stages[i].Name)
	}
	actors := make([]string, 0, len(pc.Pipeline.Actors))
	for _, actor := range pc.Pipeline.Actors {
		if trimmed := strings.TrimSpace(actor); trimmed != "" {
			actors = append(actors, trimmed)
		}
	}
	pc.Pipeline.Actors = actors
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Pipeline.TickIntervalMS <= 0 {
		return fmt.Errorf("pipeline.tick_interval_ms must be positive")
	}
	if len(pc.Pipeline.Stages) == 0 {
		return fmt.Errorf("pipeline.stages must declare at least one stage")
	}
	seen := map[string]struct{}{}
	for i, stage := range pc.Pipeline.Stages {
		if stage.ID == "" {
			return fmt.Errorf("pipeline.stages[%d]: id is required", i)
		}
		if _, dup := seen[stage.ID]; dup {
			return fmt.Errorf("pipeline.stages[%d]: duplicate id %q", i, stage.ID)
		}
		seen[stage.ID] = struct{}{}
	}
	inc := pc.Pipeline.Increment
	if inc.Min < 0 || inc.Max <= 0 || inc.Max < inc.Min {
		return fmt.Errorf("pipeline.increment range [%v,%v] is invalid", inc.Min, inc.Max)
	}
	if inc.InitialMax <= 0 {
		return fmt.Errorf("pipeline.increment.initial_max must be positive")
	}
	if pc.Pipeline.Queue.MaxDrain < 0 || pc.Pipeline.Queue.MaxArrivals < 0 {
		return fmt.Errorf("pipeline.queue bounds must be non-negative")
	}
	if pc.Pipeline.InitialQueue < 0 {
		return fmt.Errorf("pipeline.initial_queue must be non-negative")
	}
	if pc.Bridge.Port != 0 && (pc.Bridge.Port < 1 || pc.Bridge.Port > 65535) {
		return fmt.Errorf("bridge.port %d is out of range", pc.Bridge.Port)
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644); err != nil {
		return fmt.Errorf("config: write default config: %w", err)
	}
	return nil
}
