// Package config handles ogextool configuration loading and management.
package config

import (
	"fmt"

	"github.com/Faultbox/midgard-ogex/pkg/opengex"
)

// Config holds all tool settings.
type Config struct {
	Loader  LoaderConfig  `yaml:"loader"`
	Assets  AssetsConfig  `yaml:"assets"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoaderConfig holds scene loading settings.
type LoaderConfig struct {
	NormalMode string `yaml:"normal_mode"` // affine or inverse-transpose
}

// AssetsConfig holds model and texture lookup settings.
type AssetsConfig struct {
	SearchPaths  []string `yaml:"search_paths"`  // Directories searched for .ogex files
	TextureRoots []string `yaml:"texture_roots"` // Directories searched for texture images
	CacheScenes  bool     `yaml:"cache_scenes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Loader: LoaderConfig{
			NormalMode: opengex.NormalAffine.String(),
		},
		Assets: AssetsConfig{
			SearchPaths:  []string{"."},
			TextureRoots: []string{"."},
			CacheScenes:  true,
		},
		Logging: LoggingConfig{
			Level:   "warn",
			LogFile: "",
		},
	}
}

// Validate checks values that cannot be expressed by the YAML types.
func (c *Config) Validate() error {
	if _, err := opengex.ParseNormalMode(c.Loader.NormalMode); err != nil {
		return fmt.Errorf("loader.normal_mode: %w", err)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	return nil
}

// NormalMode returns the configured normal transform mode. Invalid values
// fall back to affine; Validate reports them.
func (c *Config) NormalMode() opengex.NormalMode {
	mode, _ := opengex.ParseNormalMode(c.Loader.NormalMode)
	return mode
}
