// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/safe_space/internal/app"
	"github.com/relabs-tech/safe_space/internal/discovery"
	"github.com/relabs-tech/safe_space/internal/session"
)

var monitorPort string

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List candidate serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := newSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		ports, err := sys.Ports()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found.")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Probe serial ports for the sensor",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := newSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		ctx, stop := signalContext()
		defer stop()

		port, err := sys.Discover(ctx, func(ev discovery.Event) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), ev.Message())
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), port)
		return nil
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream sensor readings to the console and MQTT",
	Long: `monitor binds to --port (or SERIAL_PORT, or the port found by
discovery) and reads one telemetry line per SCAN_INTERVAL_MS until
interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := newSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		ctx, stop := signalContext()
		defer stop()

		return app.RunMonitor(ctx, sys, monitorPort, func(res session.Result) {
			if res.Status == session.NoData {
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message())
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and websocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := newSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		ctx, stop := signalContext()
		defer stop()

		return app.NewServer(sys, app.NewAssessor(sys)).ListenAndServe(ctx)
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monitorPort, "port", "", "serial port to bind (skips discovery)")
}
