// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package inference talks to the physiological stress classifier service.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// PredictPath is the classifier endpoint, relative to the base URL.
const PredictPath = "/predict/physio"

// ErrBadProbability is returned when the service answers with a value
// outside [0,1].
var ErrBadProbability = errors.New("classifier returned invalid probability")

type predictRequest struct {
	Features []float64 `json:"features"`
}

type predictResponse struct {
	Probability *float64 `json:"probability"`
}

// Client is a physio.Model backed by an HTTP classifier.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a classifier client for baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, logger: logger}
}

// PredictStress returns P(stressed) for one feature vector.
func (c *Client) PredictStress(ctx context.Context, features []float64) (float64, error) {
	var out predictResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(predictRequest{Features: features}).
		SetResult(&out).
		Post(PredictPath)
	if err != nil {
		return 0, fmt.Errorf("classifier request: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("classifier returned %s", resp.Status())
	}
	if out.Probability == nil {
		return 0, fmt.Errorf("%w: missing probability", ErrBadProbability)
	}

	p := *out.Probability
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: %v", ErrBadProbability, p)
	}

	c.logger.Debug("classifier prediction", zap.Float64("probability", p))
	return p, nil
}
