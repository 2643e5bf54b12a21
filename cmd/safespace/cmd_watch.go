// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/safe_space/internal/app"
	"github.com/relabs-tech/safe_space/internal/broker"
	"github.com/relabs-tech/safe_space/internal/config"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print readings, discovery events and reports from MQTT",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		if cfg.MQTTBroker == "" {
			return fmt.Errorf("watch needs MQTT_BROKER")
		}
		client, err := broker.Dial(cfg.MQTTBroker, cfg.MQTTClientID+"-watch", logger)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, stop := signalContext()
		defer stop()
		return app.RunWatch(ctx, client, cfg, cmd.OutOrStdout(), logger)
	},
}
