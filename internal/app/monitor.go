// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relabs-tech/safe_space/internal/physio"
	"github.com/relabs-tech/safe_space/internal/session"
)

// ReadingMessage is what the monitor publishes for every parsed line.
type ReadingMessage struct {
	SessionID   uuid.UUID          `json:"session_id"`
	Port        string             `json:"port"`
	Timestamp   string             `json:"timestamp"`
	Payload     map[string]float64 `json:"payload"`
	Vitals      physio.Vitals      `json:"vitals"`
	Temperature string             `json:"temperature"`
}

// RunMonitor binds the session and scans it every ScanInterval until ctx is
// cancelled. port overrides the configured port; when both are empty the
// port is found by discovery. onResult, if set, sees every scan result.
func RunMonitor(ctx context.Context, sys *System, port string, onResult func(session.Result)) error {
	if port == "" {
		port = sys.Config.SerialPort
	}
	if port == "" {
		sys.Logger.Info("monitor: no port configured, running discovery")
		found, err := sys.Discover(ctx, nil)
		if err != nil {
			return err
		}
		port = found
	}

	if err := sys.Session.Connect(port); err != nil {
		return err
	}
	defer sys.Session.Disconnect()

	ticker := time.NewTicker(sys.Config.ScanInterval())
	defer ticker.Stop()

	for {
		res := sys.Session.ReadOne()
		handleResult(sys, res)
		if onResult != nil {
			onResult(res)
		}

		select {
		case <-ctx.Done():
			sys.Logger.Info("monitor: shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

func handleResult(sys *System, res session.Result) {
	switch res.Status {
	case session.Parsed:
		vitals := res.Reading.Vitals()
		msg := ReadingMessage{
			SessionID:   sys.Session.ID(),
			Port:        sys.Session.PortName(),
			Timestamp:   res.Timestamp,
			Payload:     res.Reading.Payload,
			Vitals:      vitals,
			Temperature: vitals.Temperature().String(),
		}
		if err := sys.Publisher.Publish(sys.Config.TopicReading, msg); err != nil {
			sys.Logger.Warn("monitor: publish failed", zap.Error(err))
		}
	case session.Malformed:
		sys.Logger.Warn("monitor: invalid data format", zap.String("line", res.Line))
	case session.ReadFailed:
		sys.Logger.Warn("monitor: read failed", zap.Error(res.Err))
	case session.NoData:
		sys.Logger.Debug("monitor: no new data")
	}
}
