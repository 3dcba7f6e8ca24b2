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

// Package cli implements the shmemq command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bmuddha/shmemq"
	"github.com/bmuddha/shmemq/internal/config"
	"github.com/bmuddha/shmemq/internal/logging"
)

// app is the state every subcommand shares once flags and config are
// resolved.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	closeLog func() error
}

// NewRootCmd builds the command tree. Flags are bound into the global
// viper instance.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "shmemq",
		Short: "Shared memory SPSC queue tool",
		Long: `shmemq moves uint64 sequences or newline-delimited records through a
named shared memory queue, and inspects or removes queue objects.

Run "shmemq consume" and "shmemq produce" with the same --name and
--capacity in two shells; either may start first.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/shmemq/config.yaml)")
	flags.StringP("name", "n", "", "queue object name, e.g. /orders")
	flags.Uint32("capacity", 0, "capacity in elements, or bytes with --slice")
	flags.String("sync", "", "wait primitive: auto, futex, semaphore or spin")
	flags.Bool("slice", false, "carry byte records instead of uint64 values")
	flags.String("log-level", "", "log level: DEBUG, INFO, WARN, ERROR")
	flags.String("log-format", "", "log format: text or json")
	flags.String("log-file", "", "write logs to this file instead of stderr")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("queue.name", flags.Lookup("name"))
	_ = viper.BindPFlag("queue.capacity", flags.Lookup("capacity"))
	_ = viper.BindPFlag("queue.sync", flags.Lookup("sync"))
	_ = viper.BindPFlag("queue.slice", flags.Lookup("slice"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("logging.file", flags.Lookup("log-file"))

	root.AddCommand(
		newProduceCmd(a),
		newConsumeCmd(a),
		newBenchCmd(a),
		newInspectCmd(a),
		newUnlinkCmd(a),
	)
	return root
}

// Execute runs the command tree with ctx, which is cancelled on interrupt
// by the caller.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) init(cmd *cobra.Command) error {
	if err := config.Init(viper.GetString("config")); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, closeLog, err := logging.Open(logging.Options{
		File:   cfg.Logging.File,
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.WithCommand(log, cmd.Name())
	a.closeLog = closeLog
	return nil
}

// settings returns the endpoint settings for the configured queue.
// Endpoints attach the queue name to their own entries.
func (a *app) settings() (shmemq.Settings, error) {
	return a.cfg.Settings(a.log)
}

// queueLog is the command's logger for messages about the queue.
func (a *app) queueLog() *slog.Logger {
	return logging.WithQueue(a.log, a.cfg.Queue.Name)
}

// stopped reports whether err only says the command was interrupted.
func stopped(err error) bool {
	return errors.Is(err, context.Canceled)
}
