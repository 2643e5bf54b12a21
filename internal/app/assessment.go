// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/safe_space/internal/broker"
	"github.com/relabs-tech/safe_space/internal/coach"
	"github.com/relabs-tech/safe_space/internal/physio"
	"github.com/relabs-tech/safe_space/internal/stress"
)

// Request carries the modality results computed outside this process.
// Physio is taken from the sensor unless Physio is set explicitly.
type Request struct {
	Audio  stress.ModalityResult  `json:"audio"`
	Facial stress.ModalityResult  `json:"facial"`
	Survey stress.ModalityResult  `json:"survey"`
	Physio *stress.ModalityResult `json:"physio,omitempty"`
	Words  string                 `json:"words,omitempty"`
}

// Report is one stress assessment.
type Report struct {
	Fusion      stress.FusionResult              `json:"fusion"`
	Inputs      map[string]stress.ModalityResult `json:"inputs"`
	Advice      string                           `json:"advice"`
	GeneratedAt time.Time                        `json:"generated_at"`
}

// Summary renders the report for a terminal.
func (r Report) Summary() string {
	var b strings.Builder
	b.WriteString("Overall Stress Assessment\n")
	fmt.Fprintf(&b, "- Confidence of being Stressed: %.2f (0.0 to 1.0)\n", r.Fusion.Score)
	fmt.Fprintf(&b, "- Overall Assessment: %s\n", r.Fusion.Label)
	for _, m := range stress.Modalities {
		in := r.Inputs[m.String()]
		fmt.Fprintf(&b, "  %-7s %-13s %.2f\n", m, in.Label, in.Confidence)
	}
	b.WriteString("\nYour AI Coach says:\n")
	b.WriteString(r.Advice)
	b.WriteString("\n")
	return b.String()
}

// LineSource supplies the latest sensor line.
type LineSource interface {
	LatestLine() string
}

// Assessor fuses the four modalities and asks the coach for advice.
type Assessor struct {
	lines     LineSource
	model     physio.Model
	coach     coach.Coach
	publisher broker.Publisher
	topic     string
	logger    *zap.Logger
	now       func() time.Time
}

// NewAssessor wires an Assessor from sys.
func NewAssessor(sys *System) *Assessor {
	return &Assessor{
		lines:     sys.Session,
		model:     sys.Model,
		coach:     sys.Coach,
		publisher: sys.Publisher,
		topic:     sys.Config.TopicFusion,
		logger:    sys.Logger,
		now:       time.Now,
	}
}

// Assess produces a Report and publishes it. It never fails: modalities
// that cannot be evaluated count as unavailable.
func (a *Assessor) Assess(ctx context.Context, req Request) Report {
	phys := stress.UnavailableResult()
	if req.Physio != nil {
		phys = *req.Physio
	} else if a.lines != nil {
		phys = physio.Assess(ctx, a.lines.LatestLine(), a.model, a.logger)
	}

	var in stress.FusionInput
	in[stress.Audio] = req.Audio
	in[stress.Facial] = req.Facial
	in[stress.Physio] = phys
	in[stress.Survey] = req.Survey

	result := stress.Assess(in)

	inputs := make(map[string]stress.ModalityResult, len(in))
	for _, m := range stress.Modalities {
		inputs[m.String()] = in[m]
	}

	report := Report{
		Fusion:      result,
		Inputs:      inputs,
		Advice:      a.coach.Advise(ctx, result.Score, req.Words),
		GeneratedAt: a.now().UTC(),
	}

	a.logger.Info("assessment complete",
		zap.Float64("score", result.Score),
		zap.Stringer("label", result.Label),
	)
	if err := a.publisher.Publish(a.topic, report); err != nil {
		a.logger.Warn("assessment: publish failed", zap.Error(err))
	}
	return report
}
