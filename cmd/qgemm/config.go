package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the qgemm configuration file (~/.config/qgemm/config.yaml).
// Numeric fields are pointers so we can distinguish "not set" from zero values.
type Config struct {
	BlkLen  *int64 `yaml:"blk_len"`
	Workers *int64 `yaml:"workers"`

	// Verification defaults
	Seed      *int64   `yaml:"seed"`
	Tolerance *float64 `yaml:"tolerance"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "qgemm", "config.yaml")
}

// applyKernelConfig applies config file defaults to the kernel flag
// variables when the corresponding CLI flag was not explicitly set.
func applyKernelConfig(c *cli.Command, cfg Config) {
	if cfg.BlkLen != nil && !c.IsSet("blk-len") {
		blkLen = *cfg.BlkLen
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		workers = *cfg.Workers
	}
}

// applyVerifyConfig applies config file defaults to verify command variables.
func applyVerifyConfig(c *cli.Command, cfg Config, seed *int64, tolerance *float64) {
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
	if cfg.Tolerance != nil && !c.IsSet("tolerance") {
		*tolerance = *cfg.Tolerance
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
