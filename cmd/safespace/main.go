// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Command safespace finds the physiological sensor, streams its telemetry
// and fuses multimodal stress estimates.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/relabs-tech/safe_space/internal/app"
	"github.com/relabs-tech/safe_space/internal/config"
	"github.com/relabs-tech/safe_space/internal/logging"
)

const defaultConfigPath = "safespace_config.txt"

var (
	// Global flags
	configPath string
	mock       bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "safespace",
	Short: "Safe Space - multimodal stress fusion and sensor discovery",
	Long: `safespace locates the physiological sensor on a serial port with a
PING/PONG handshake, streams its JSON telemetry, and fuses audio, facial,
physiological and survey stress estimates into one agreement-weighted score.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if !cmd.Flags().Changed("config") {
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				path = ""
			}
		}
		if err := config.InitGlobal(path); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg := config.Get()
		if mock {
			cfg.SerialMock = true
		}

		var err error
		logger, err = logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to the KEY=VALUE config file")
	rootCmd.PersistentFlags().BoolVar(&mock, "mock", false, "offer a simulated sensor on port \"mock\"")

	rootCmd.AddCommand(portsCmd, discoverCmd, monitorCmd, serveCmd, fuseCmd, watchCmd)
}

// newSystem wires the collaborators for commands that touch the sensor.
func newSystem() (*app.System, error) {
	return app.NewSystem(config.Get(), logger)
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
