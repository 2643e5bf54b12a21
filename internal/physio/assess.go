// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package physio

import (
	"context"

	"go.uber.org/zap"

	"github.com/relabs-tech/safe_space/internal/stress"
)

// Model is the physiological stress classifier. PredictStress returns
// P(stressed) for one feature vector in FeatureKeys order.
type Model interface {
	PredictStress(ctx context.Context, features []float64) (float64, error)
}

// Assess runs the physiological modality on the latest telemetry line.
// Every failure (no line, malformed line, no model, model error) yields an
// Unavailable result; the cause is logged at warn level.
func Assess(ctx context.Context, line string, model Model, logger *zap.Logger) stress.ModalityResult {
	if line == "" {
		logger.Debug("physio: no telemetry available")
		return stress.UnavailableResult()
	}
	if model == nil {
		logger.Debug("physio: no model configured")
		return stress.UnavailableResult()
	}

	vitals, err := ParseVitals(line)
	if err != nil {
		logger.Warn("physio: data format error", zap.Error(err), zap.String("line", line))
		return stress.UnavailableResult()
	}

	p, err := model.PredictStress(ctx, vitals.Features())
	if err != nil {
		logger.Warn("physio: prediction error", zap.Error(err))
		return stress.UnavailableResult()
	}
	return stress.FromProbability(p)
}
