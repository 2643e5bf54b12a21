// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stress

import "math"

// minAgreement is the total agreement below which the weighted average is
// abandoned in favor of the plain mean.
const minAgreement = 1e-9

// Normalize maps a modality result onto a common P(stressed) scale in [0,1].
// Unavailable results and unusable confidences map to Neutral.
func Normalize(r ModalityResult) float64 {
	if r.Label != Stressed && r.Label != NotStressed {
		return Neutral
	}
	if math.IsNaN(r.Confidence) {
		return Neutral
	}
	c := clamp01(r.Confidence)
	if r.Label == Stressed {
		return c
	}
	return 1 - c
}

// Fuse combines normalized P(stressed) values with agreement weighting.
//
// Values equal to Neutral carry no information and are left out. Each
// remaining value is weighted by its mean closeness to the others:
//
//	agree[i] = 1/(M-1) * Σ_{j≠i} (1 - |v[i] - v[j]|)
//	fused    = Σ agree[i]*v[i] / Σ agree[i]
//
// so an outlier is down-weighted but never dropped.
func Fuse(values []float64) float64 {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if v != Neutral {
			valid = append(valid, v)
		}
	}

	m := len(valid)
	switch m {
	case 0:
		return Neutral
	case 1:
		return clamp01(valid[0])
	}

	var weighted, total float64
	for i, vi := range valid {
		var closeness float64
		for j, vj := range valid {
			if i != j {
				closeness += 1 - math.Abs(vi-vj)
			}
		}
		agree := closeness / float64(m-1)
		weighted += agree * vi
		total += agree
	}

	if total < minAgreement {
		return clamp01(mean(valid))
	}
	return clamp01(weighted / total)
}

// Assess normalizes every slot of in and fuses them.
func Assess(in FusionInput) FusionResult {
	scores := Scores{
		Audio:  Normalize(in[Audio]),
		Facial: Normalize(in[Facial]),
		Physio: Normalize(in[Physio]),
		Survey: Normalize(in[Survey]),
	}
	score := Fuse(scores.slice())
	return FusionResult{
		Score:  score,
		Label:  LabelFor(score),
		Scores: scores,
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// clamp01 keeps out-of-range or NaN results from leaving [0,1].
func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return Neutral
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
