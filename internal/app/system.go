// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/relabs-tech/safe_space/internal/broker"
	"github.com/relabs-tech/safe_space/internal/coach"
	"github.com/relabs-tech/safe_space/internal/config"
	"github.com/relabs-tech/safe_space/internal/discovery"
	"github.com/relabs-tech/safe_space/internal/inference"
	"github.com/relabs-tech/safe_space/internal/physio"
	"github.com/relabs-tech/safe_space/internal/serialport"
	"github.com/relabs-tech/safe_space/internal/session"
)

// System is the wired set of collaborators shared by the commands.
type System struct {
	Config    *config.Config
	Logger    *zap.Logger
	Open      serialport.OpenFunc
	Prober    *discovery.Prober
	Session   *session.Session
	Publisher broker.Publisher
	Model     physio.Model // nil when no classifier is configured
	Coach     coach.Coach
}

// NewSystem builds a System from configuration. It connects to the MQTT
// broker when one is configured.
func NewSystem(cfg *config.Config, logger *zap.Logger) (*System, error) {
	open := serialport.OpenFunc(serialport.Serial)
	if cfg.SerialMock {
		open = serialport.WithMock(open)
	}

	var pub broker.Publisher = broker.Nop{}
	if cfg.MQTTBroker != "" {
		m, err := broker.Dial(cfg.MQTTBroker, cfg.MQTTClientID, logger)
		if err != nil {
			return nil, err
		}
		pub = m
	}

	return newSystem(cfg, logger, open, pub), nil
}

func newSystem(cfg *config.Config, logger *zap.Logger, open serialport.OpenFunc, pub broker.Publisher) *System {
	baud := uint(cfg.SerialBaudRate)

	sys := &System{
		Config: cfg,
		Logger: logger,
		Open:   open,
		Prober: discovery.NewProber(open, discovery.Config{
			BaudRate: baud,
			Timeout:  cfg.DiscoveryTimeout(),
			Settle:   cfg.DiscoverySettle(),
		}, logger),
		Session: session.New(open, session.Config{
			BaudRate:    baud,
			ReadTimeout: cfg.SessionReadTimeout(),
			OpenTimeout: cfg.SessionOpenTimeout(),
		}, logger),
		Publisher: pub,
		Coach:     coach.Disabled{},
	}

	if cfg.InferenceURL != "" {
		sys.Model = inference.NewClient(cfg.InferenceURL, cfg.InferenceTimeout(), logger)
	}
	if cfg.CoachURL != "" {
		sys.Coach = coach.NewClient(cfg.CoachURL, cfg.CoachModel, cfg.CoachTimeout(), logger)
	}
	return sys
}

// Ports lists candidate serial ports. The simulated sensor comes first when
// enabled.
func (s *System) Ports() ([]string, error) {
	patterns := s.Config.SerialPortPatterns
	if len(patterns) == 0 {
		patterns = serialport.DefaultPatterns()
	}
	ports, err := serialport.List(patterns)
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	if s.Config.SerialMock {
		ports = append([]string{serialport.MockPortName}, ports...)
	}
	return ports, nil
}

// Discover runs one discovery pass over the current ports, publishing every
// event. onEvent, if set, sees each event as it happens; an error from it
// ends the pass before the next port is opened. The pass also stops when ctx
// is cancelled.
func (s *System) Discover(ctx context.Context, onEvent func(discovery.Event) error) (string, error) {
	ports, err := s.Ports()
	if err != nil {
		return "", err
	}

	for ev := range s.Prober.Events(ports) {
		if err := s.Publisher.Publish(s.Config.TopicDiscovery, ev); err != nil {
			s.Logger.Warn("discovery: publish failed", zap.Error(err))
		}
		if onEvent != nil {
			if err := onEvent(ev); err != nil {
				return "", err
			}
		}

		switch ev.Kind {
		case discovery.Found:
			return ev.Port, nil
		case discovery.NoPorts:
			return "", discovery.ErrNoPorts
		case discovery.NotFound:
			return "", discovery.ErrNotFound
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
	return "", discovery.ErrNotFound
}

// Close releases the serial port and the broker connection.
func (s *System) Close() {
	s.Session.Disconnect()
	s.Publisher.Close()
}
