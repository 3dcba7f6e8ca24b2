/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package config loads the shmemq command's settings through viper:
// defaults, an optional YAML file and SHMEMQ_ environment variables.
package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/bmuddha/shmemq"
)

// EnvPrefix is prepended to environment overrides, e.g.
// SHMEMQ_QUEUE_CAPACITY.
const EnvPrefix = "SHMEMQ"

// Config represents the complete shmemq command configuration
type Config struct {
	Queue   QueueConfig   `mapstructure:"queue"`
	Logging LoggingConfig `mapstructure:"logging"`
	Bench   BenchConfig   `mapstructure:"bench"`
}

// QueueConfig identifies the queue both ends open
type QueueConfig struct {
	// Name is the shared memory object name, e.g. "/orders"
	Name string `mapstructure:"name"`
	// Capacity is in elements, or in bytes when Slice is set
	Capacity uint32 `mapstructure:"capacity"`
	// Sync is the wait primitive: "auto", "futex", "semaphore" or "spin"
	Sync string `mapstructure:"sync"`
	// Slice selects byte records instead of uint64 elements
	Slice bool `mapstructure:"slice"`
}

// LoggingConfig controls the command's logger
type LoggingConfig struct {
	// Level is DEBUG, INFO, WARN or ERROR
	Level string `mapstructure:"level"`
	// Format is "text" or "json"
	Format string `mapstructure:"format"`
	// File receives the log; empty means stderr
	File string `mapstructure:"file"`
}

// BenchConfig sizes the bench subcommand
type BenchConfig struct {
	// Count is the number of elements or records to move
	Count int `mapstructure:"count"`
	// RecordSize is the payload size in slice mode
	RecordSize int `mapstructure:"record_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Queue: QueueConfig{
			Name:     "/shmemq",
			Capacity: 4096,
			Sync:     "auto",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Bench: BenchConfig{
			Count:      1_000_000,
			RecordSize: 64,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("queue.name", defaults.Queue.Name)
	viper.SetDefault("queue.capacity", defaults.Queue.Capacity)
	viper.SetDefault("queue.sync", defaults.Queue.Sync)
	viper.SetDefault("queue.slice", defaults.Queue.Slice)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.format", defaults.Logging.Format)
	viper.SetDefault("logging.file", defaults.Logging.File)

	viper.SetDefault("bench.count", defaults.Bench.Count)
	viper.SetDefault("bench.record_size", defaults.Bench.RecordSize)
}

// Init points viper at the config file and the environment. An explicit
// cfgFile wins over the search path. A missing file is not an error.
func Init(cfgFile string) error {
	SetDefaults()
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Settings converts the queue section into endpoint settings.
func (c *Config) Settings(logger *slog.Logger) (shmemq.Settings, error) {
	kind, err := shmemq.ParseSyncKind(c.Queue.Sync)
	if err != nil {
		return shmemq.Settings{}, err
	}
	return shmemq.Settings{
		Name:     c.Queue.Name,
		Capacity: c.Queue.Capacity,
		Sync:     kind,
		Logger:   logger,
	}, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shmemq")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shmemq"
	}
	return filepath.Join(home, ".config", "shmemq")
}
