// Package config loads layered settings: built-in defaults, then the
// global file under the home directory, then the project-local file.
// Later layers win per key.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// DirName is the dot-directory holding the database and config.
	DirName = ".taskmem"
	// FileName is the config file name inside DirName.
	FileName = "config.yaml"
	// DefaultDBFile is the database file name inside DirName.
	DefaultDBFile = "tasks.db"
)

// ExportConfig holds defaults for export runs.
type ExportConfig struct {
	ExcludeFields []string `mapstructure:"exclude_fields" yaml:"exclude_fields,omitempty"`
	Compress      bool     `mapstructure:"compress" yaml:"compress,omitempty"`
}

// Config is the resolved configuration.
type Config struct {
	DBPath       string       `mapstructure:"db_path" yaml:"db_path"`
	Strict       bool         `mapstructure:"strict" yaml:"strict"`
	MaxDependsOn int          `mapstructure:"max_depends_on" yaml:"max_depends_on"`
	Export       ExportConfig `mapstructure:"export" yaml:"export,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DBPath: filepath.Join(DirName, DefaultDBFile),
		Strict: true,
	}
}

// Load resolves configuration for the current working directory.
func Load() (*Config, error) {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, DirName, FileName))
	}
	paths = append(paths, filepath.Join(DirName, FileName))
	return load(paths)
}

func load(paths []string) (*Config, error) {
	def := Default()
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("strict", def.Strict)
	v.SetDefault("max_depends_on", def.MaxDependsOn)

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Write serializes the config to path, creating parent directories.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
