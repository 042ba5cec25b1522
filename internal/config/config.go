// Package config loads application configuration from an optional YAML file
// and ESPACE_* environment variables, layered over built-in panoramic
// radiograph defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/dentalvision/espace-analyzer/pkg/analyzer"
	"github.com/dentalvision/espace-analyzer/pkg/anatomy"
	"github.com/dentalvision/espace-analyzer/pkg/client"
	"github.com/dentalvision/espace-analyzer/pkg/clinical"
	"github.com/dentalvision/espace-analyzer/pkg/measure"
	"github.com/dentalvision/espace-analyzer/pkg/pairing"
	"github.com/dentalvision/espace-analyzer/pkg/preprocess"
)

// DetectorConfig selects and parameterizes the detector backend.
type DetectorConfig struct {
	Backend             string  `mapstructure:"backend"` // rest | ollama | mock
	ServerURL           string  `mapstructure:"server_url"`
	Model               string  `mapstructure:"model"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	IoUThreshold        float64 `mapstructure:"iou_threshold"`
}

// PreprocessConfig mirrors preprocess.Config with mapstructure tags.
type PreprocessConfig struct {
	ClipLimit    float64 `mapstructure:"clip_limit"`
	TileGridSize int     `mapstructure:"tile_grid_size"`
	MedianRadius float64 `mapstructure:"median_radius"`
	Sharpen      bool    `mapstructure:"sharpen"`
}

// BatchConfig bounds batch concurrency.
type BatchConfig struct {
	Workers int `mapstructure:"workers"`
}

// ServerConfig holds HTTP service settings.
type ServerConfig struct {
	Addr            string `mapstructure:"addr"`
	MaxImageBytes   int64  `mapstructure:"max_image_bytes"`
	RequestTimeoutS int    `mapstructure:"request_timeout_s"`
}

// Config is the full application configuration.
type Config struct {
	Detector   DetectorConfig   `mapstructure:"detector"`
	Preprocess PreprocessConfig `mapstructure:"preprocess"`
	Anatomy    anatomy.Config   `mapstructure:"anatomy"`
	Pairing    pairing.Config   `mapstructure:"pairing"`
	Measure    measure.Config   `mapstructure:"measure"`
	Clinical   clinical.Config  `mapstructure:"clinical"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Server     ServerConfig     `mapstructure:"server"`
}

// Default returns the built-in panoramic radiograph configuration.
func Default() *Config {
	pp := preprocess.DefaultConfig()
	return &Config{
		Detector: DetectorConfig{
			Backend:             "rest",
			ServerURL:           "",
			Model:               "",
			ConfidenceThreshold: 0.25,
			IoUThreshold:        0.45,
		},
		Preprocess: PreprocessConfig{
			ClipLimit:    pp.ClipLimit,
			TileGridSize: pp.TileGridSize,
			MedianRadius: pp.MedianRadius,
			Sharpen:      pp.Sharpen,
		},
		Anatomy:  anatomy.DefaultConfig(),
		Pairing:  pairing.DefaultConfig(),
		Measure:  measure.DefaultConfig(),
		Clinical: clinical.DefaultConfig(),
		Batch:    BatchConfig{Workers: 4},
		Server: ServerConfig{
			Addr:            ":8080",
			MaxImageBytes:   32 << 20,
			RequestTimeoutS: 120,
		},
	}
}

// Load layers an optional config file and environment variables over the
// defaults. An empty path searches for espace.yaml in the working directory;
// a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("espace")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("ESPACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline would refuse anyway, before
// any image is processed.
func (c *Config) Validate() error {
	switch c.Detector.Backend {
	case "rest", "ollama", "mock":
	default:
		return fmt.Errorf("detector.backend must be rest, ollama or mock, got %q", c.Detector.Backend)
	}
	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		return fmt.Errorf("detector.confidence_threshold must be in [0,1]")
	}
	if c.Detector.IoUThreshold <= 0 || c.Detector.IoUThreshold >= 1 {
		return fmt.Errorf("detector.iou_threshold must be in (0,1)")
	}
	if c.Measure.MMPerPixel <= 0 {
		return fmt.Errorf("measure.mm_per_pixel must be positive: %w", measure.ErrCalibrationMisconfigured)
	}
	if c.Measure.MagnificationFactor <= 0 {
		return fmt.Errorf("measure.magnification_factor must be positive: %w", measure.ErrCalibrationMisconfigured)
	}
	if c.Anatomy.PosteriorStart >= c.Anatomy.PosteriorEnd {
		return fmt.Errorf("anatomy.posterior band is empty")
	}
	if c.Anatomy.MiddleStart >= c.Anatomy.MiddleEnd {
		return fmt.Errorf("anatomy.middle band is empty")
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1")
	}
	return nil
}

// Pipeline assembles the analyzer configuration from the loaded settings.
func (c *Config) Pipeline() analyzer.Config {
	return analyzer.Config{
		Detect: client.DetectOptions{
			Model:               c.Detector.Model,
			ConfidenceThreshold: c.Detector.ConfidenceThreshold,
			IoUThreshold:        c.Detector.IoUThreshold,
		},
		Preprocess: preprocess.Config{
			ClipLimit:    c.Preprocess.ClipLimit,
			TileGridSize: c.Preprocess.TileGridSize,
			MedianRadius: c.Preprocess.MedianRadius,
			Sharpen:      c.Preprocess.Sharpen,
		},
		Anatomy:  c.Anatomy,
		Pairing:  c.Pairing,
		Measure:  c.Measure,
		Clinical: c.Clinical,
	}
}
