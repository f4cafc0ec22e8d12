package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all reconstruction run configuration.
type Config struct {
	Dataset DatasetConfig `yaml:"dataset"`
	Chunks  ChunkConfig   `yaml:"chunks"`
	Reader  ReaderConfig  `yaml:"reader"`
	Scratch ScratchConfig `yaml:"scratch"`
	Logging LogConfig     `yaml:"logging"`
}

// DatasetConfig holds the dataset geometry supplied by the sizing
// collaborator: projection count, detector height and width, and the number
// of calibration frames.
type DatasetConfig struct {
	Projections int `envconfig:"TOMO_PROJECTIONS" default:"1500" yaml:"projections"`
	Rows        int `envconfig:"TOMO_ROWS" default:"2048" yaml:"rows"`
	Width       int `envconfig:"TOMO_WIDTH" default:"2448" yaml:"width"`
	DarkFrames  int `envconfig:"TOMO_DARK_FRAMES" default:"10" yaml:"dark_frames"`
	FlatFrames  int `envconfig:"TOMO_FLAT_FRAMES" default:"20" yaml:"flat_frames"`
}

// ChunkConfig holds the chunk plan targets for the two pipeline passes.
type ChunkConfig struct {
	SinoRows    int `envconfig:"TOMO_SINO_CHUNK" default:"8" yaml:"sino_rows"`
	Projections int `envconfig:"TOMO_PROJ_CHUNK" default:"8" yaml:"projections"`
}

// ReaderConfig holds bulk reader configuration.
type ReaderConfig struct {
	Workers int `envconfig:"TOMO_READ_WORKERS" default:"16" yaml:"workers"`
}

// ScratchConfig selects the backing mode for intermediate volumes.
type ScratchConfig struct {
	// OutOfCore switches intermediate volumes from host memory to a
	// chunked scratch store under Dir.
	OutOfCore bool   `envconfig:"TOMO_OUT_OF_CORE" default:"false" yaml:"out_of_core"`
	Dir       string `envconfig:"TOMO_SCRATCH_DIR" default:"/tmp/tomostream" yaml:"dir"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// Load loads configuration from environment variables. If TOMO_CONFIG_FILE
// is set, the YAML file is overlaid afterwards and takes precedence.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if path := os.Getenv("TOMO_CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Projections: 1500,
			Rows:        2048,
			Width:       2448,
			DarkFrames:  10,
			FlatFrames:  20,
		},
		Chunks: ChunkConfig{
			SinoRows:    8,
			Projections: 8,
		},
		Reader: ReaderConfig{
			Workers: 16,
		},
		Scratch: ScratchConfig{
			OutOfCore: false,
			Dir:       "/tmp/tomostream",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	d := c.Dataset
	if d.Projections <= 0 || d.Rows <= 0 || d.Width <= 0 {
		return fmt.Errorf("invalid dataset geometry %dx%dx%d", d.Projections, d.Rows, d.Width)
	}
	if c.Reader.Workers <= 0 {
		return fmt.Errorf("invalid reader worker count %d", c.Reader.Workers)
	}
	return nil
}
