// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/relabs-tech/safe_space/internal/broker"
	"github.com/relabs-tech/safe_space/internal/config"
)

// Subscriber is the receiving side of the broker.
type Subscriber interface {
	Subscribe(topic string, handler broker.Handler) error
}

// discoveryMessage mirrors the JSON form of discovery.Event.
type discoveryMessage struct {
	Kind    string `json:"kind"`
	Port    string `json:"port"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// RunWatch prints readings, discovery events and reports published by other
// safespace processes until ctx is cancelled.
func RunWatch(ctx context.Context, sub Subscriber, cfg *config.Config, out io.Writer, logger *zap.Logger) error {
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	err := sub.Subscribe(cfg.TopicReading, func(_ string, payload []byte) {
		var m ReadingMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			logger.Warn("watch: reading unmarshal error", zap.Error(err))
			return
		}
		v := m.Vitals
		printf("[PHYS] %s eda=%8.3f bvp=%9.1f temp=%s acc=(%7.1f %7.1f %7.1f)\n",
			m.Timestamp, v.EDA, v.BVPIR, m.Temperature, v.AccX, v.AccY, v.AccZ)
	})
	if err != nil {
		return err
	}

	err = sub.Subscribe(cfg.TopicDiscovery, func(_ string, payload []byte) {
		var m discoveryMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			logger.Warn("watch: discovery unmarshal error", zap.Error(err))
			return
		}
		printf("[DISC] %s\n", m.Message)
	})
	if err != nil {
		return err
	}

	err = sub.Subscribe(cfg.TopicFusion, func(_ string, payload []byte) {
		var r Report
		if err := json.Unmarshal(payload, &r); err != nil {
			logger.Warn("watch: report unmarshal error", zap.Error(err))
			return
		}
		printf("[FUSE] score=%.2f label=%s audio=%.2f facial=%.2f physio=%.2f survey=%.2f\n",
			r.Fusion.Score, r.Fusion.Label,
			r.Fusion.Scores.Audio, r.Fusion.Scores.Facial, r.Fusion.Scores.Physio, r.Fusion.Scores.Survey)
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("watch: shutting down")
	return nil
}
