// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stress holds the per-modality stress estimates and the
// agreement-weighted fusion that turns them into one score.
package stress

import (
	"fmt"
	"strings"
)

// Label is the verdict attached to a modality result or a fused score.
// The zero value is Unavailable so that an empty FusionInput slot means
// "no data".
type Label int

const (
	Unavailable Label = iota
	NotStressed
	Stressed
)

// Neutral is the P(stressed) value that carries no information.
// Unavailable modalities normalize to it and the fusion engine ignores it.
const Neutral = 0.5

func (l Label) String() string {
	switch l {
	case Stressed:
		return "stressed"
	case NotStressed:
		return "not_stressed"
	default:
		return "unavailable"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts the
// canonical names plus a few spellings used by classifier services.
func (l *Label) UnmarshalText(b []byte) error {
	parsed, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLabel converts a textual label into a Label.
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stressed", "stress":
		return Stressed, nil
	case "not_stressed", "not stressed", "notstressed", "calm":
		return NotStressed, nil
	case "unavailable", "error", "":
		return Unavailable, nil
	default:
		return Unavailable, fmt.Errorf("unknown stress label %q", s)
	}
}

// Modality identifies one independent input channel.
type Modality int

const (
	Audio Modality = iota
	Facial
	Physio
	Survey

	numModalities = 4
)

// Modalities lists every channel in FusionInput order.
var Modalities = [numModalities]Modality{Audio, Facial, Physio, Survey}

func (m Modality) String() string {
	switch m {
	case Audio:
		return "audio"
	case Facial:
		return "facial"
	case Physio:
		return "physio"
	case Survey:
		return "survey"
	default:
		return fmt.Sprintf("modality(%d)", int(m))
	}
}

// ModalityResult is what a classifier reports: its predicted label and the
// probability it assigned to that label (not necessarily to "stressed").
type ModalityResult struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// UnavailableResult is the result used when a classifier could not run.
func UnavailableResult() ModalityResult {
	return ModalityResult{Label: Unavailable, Confidence: Neutral}
}

// FromProbability wraps a raw P(stressed) the way binary classifiers report
// it: the winning label and the probability of that label.
func FromProbability(p float64) ModalityResult {
	if p >= 0.5 {
		return ModalityResult{Label: Stressed, Confidence: p}
	}
	return ModalityResult{Label: NotStressed, Confidence: 1 - p}
}

// FusionInput holds one result per modality, indexed by Modality.
type FusionInput [numModalities]ModalityResult

// FusionResult is the fused verdict.
type FusionResult struct {
	Score  float64 `json:"score"`
	Label  Label   `json:"label"`
	Scores Scores  `json:"modalities"`
}

// Scores are the normalized P(stressed) values fed into the fusion engine.
type Scores struct {
	Audio  float64 `json:"audio"`
	Facial float64 `json:"facial"`
	Physio float64 `json:"physio"`
	Survey float64 `json:"survey"`
}

func (s Scores) slice() []float64 {
	return []float64{s.Audio, s.Facial, s.Physio, s.Survey}
}

// LabelFor maps a fused score to its verdict.
func LabelFor(score float64) Label {
	if score >= 0.5 {
		return Stressed
	}
	return NotStressed
}
