// Package config loads annotator settings from YAML, the environment and
// command line flags, in that order of precedence (flags win).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full annotator configuration.
type Config struct {
	Addr     string         `yaml:"addr"`
	DBPath   string         `yaml:"db_path"`
	Log      LogConfig      `yaml:"log"`
	Engine   EngineConfig   `yaml:"engine"`
	Annotate AnnotateConfig `yaml:"annotate"`
	Ingest   IngestConfig   `yaml:"ingest"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig configures the Stockfish process pool.
type EngineConfig struct {
	Path      string        `yaml:"path"`
	Workers   int           `yaml:"workers"`    // engine processes
	Threads   int           `yaml:"threads"`    // threads per process
	HashMB    int           `yaml:"hash_mb"`    // hash per process
	Nice      int           `yaml:"nice"`       // 0 = disabled
	Depth     int           `yaml:"depth"`      // default search depth
	Timeout   time.Duration `yaml:"timeout"`    // per call
	CacheFile string        `yaml:"cache_file"` // optional .csv or .csv.zst
}

type AnnotateConfig struct {
	PlyConcurrency  int `yaml:"ply_concurrency"`
	GameConcurrency int `yaml:"game_concurrency"`
	MaxBatchLimit   int `yaml:"max_batch_limit"`
}

// IngestConfig configures the PGN watch folder. Ingest is disabled when
// WatchDir is empty.
type IngestConfig struct {
	WatchDir     string        `yaml:"watch_dir"`
	ProcessedDir string        `yaml:"processed_dir"`
	Owner        string        `yaml:"owner"`
	RatingMin    int           `yaml:"rating_min"` // 0 = no filter
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8007"
	}
	if c.DBPath == "" {
		c.DBPath = "./data/annotator.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Engine.Path == "" {
		c.Engine.Path = "stockfish"
	}
	if c.Engine.Workers == 0 {
		c.Engine.Workers = 1
	}
	if c.Engine.Threads == 0 {
		c.Engine.Threads = 2
	}
	if c.Engine.HashMB == 0 {
		c.Engine.HashMB = 128
	}
	if c.Engine.Depth == 0 {
		c.Engine.Depth = 18
	}
	if c.Engine.Timeout == 0 {
		c.Engine.Timeout = 30 * time.Second
	}
	if c.Annotate.PlyConcurrency == 0 {
		c.Annotate.PlyConcurrency = 2
	}
	if c.Annotate.GameConcurrency == 0 {
		c.Annotate.GameConcurrency = 1
	}
	if c.Annotate.MaxBatchLimit == 0 {
		c.Annotate.MaxBatchLimit = 50
	}
	if c.Ingest.PollInterval == 0 {
		c.Ingest.PollInterval = 10 * time.Second
	}
}

// Validate rejects settings the annotator cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.Workers < 1 {
		errs = append(errs, fmt.Errorf("engine.workers must be >= 1, got %d", c.Engine.Workers))
	}
	if c.Engine.Depth < 1 {
		errs = append(errs, fmt.Errorf("engine.depth must be >= 1, got %d", c.Engine.Depth))
	}
	if c.Engine.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.timeout must be positive, got %s", c.Engine.Timeout))
	}
	if c.Engine.Nice < 0 || c.Engine.Nice > 19 {
		errs = append(errs, fmt.Errorf("engine.nice must be within 0..19, got %d", c.Engine.Nice))
	}
	if c.Annotate.PlyConcurrency < 1 {
		errs = append(errs, fmt.Errorf("annotate.ply_concurrency must be >= 1, got %d", c.Annotate.PlyConcurrency))
	}
	if c.Annotate.GameConcurrency < 1 {
		errs = append(errs, fmt.Errorf("annotate.game_concurrency must be >= 1, got %d", c.Annotate.GameConcurrency))
	}
	if c.Annotate.MaxBatchLimit < 1 {
		errs = append(errs, fmt.Errorf("annotate.max_batch_limit must be >= 1, got %d", c.Annotate.MaxBatchLimit))
	}
	if c.Ingest.WatchDir != "" && c.Ingest.Owner == "" {
		errs = append(errs, errors.New("ingest.owner is required when ingest.watch_dir is set"))
	}
	return errors.Join(errs...)
}

// Load reads the YAML file at path (optional), applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, c); err != nil {
			return nil, err
		}
	}
	c.applyEnv(os.LookupEnv)
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// Parse decodes YAML into c, rejecting unknown keys.
func Parse(data []byte, c *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("STOCKFISH_PATH"); ok && v != "" {
		c.Engine.Path = v
	}
	if v, ok := lookup("ANNOTATOR_DB"); ok && v != "" {
		c.DBPath = v
	}
	if v, ok := lookup("ANNOTATOR_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("ANNOTATOR_ENGINE_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.Workers = n
		}
	}
}
