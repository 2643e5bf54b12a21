// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package coach asks a chat model for supportive advice on a stress score.
// The coach is best-effort: failures turn into placeholder text, never errors.
package coach

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ChatPath is the Ollama chat endpoint, relative to the base URL.
const ChatPath = "/api/chat"

const (
	// Unavailable is returned when no coach is configured.
	Unavailable = "The AI coach is currently unavailable."
	// NoContent is returned when the model answers with an empty message.
	NoContent = "No response content."
	unreachable = "Could not reach the AI coach. Please ensure Ollama is running.\nError: %v"
)

// Coach produces advice text for a fused stress score.
type Coach interface {
	Advise(ctx context.Context, score float64, words string) string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Client is a Coach backed by an Ollama-compatible chat API.
type Client struct {
	http   *resty.Client
	model  string
	logger *zap.Logger
}

// NewClient creates a coach client.
func NewClient(baseURL, model string, timeout time.Duration, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, model: model, logger: logger}
}

// Prompt builds the coach instruction for a score in [0,1].
func Prompt(score float64, words string) string {
	if words == "" {
		words = "Not provided."
	}
	return fmt.Sprintf(`[INSTRUCTION] You are "Safe Space", a compassionate AI mental health coach. `+
		`Analyze the user's data: - Stress Score: %d%% - User's Words: %q `+
		`Based on this, classify their stress (No Stress, Eustress, Mild/Moderate/Severe Distress) `+
		`and provide 3-5 short, empathetic, and actionable tips in under 300 words. `+
		`Be warm and supportive. Respond only with the analysis. [/INSTRUCTION]`,
		int(score*100), words)
}

// Advise returns the model's answer, or a placeholder explaining why there is none.
func (c *Client) Advise(ctx context.Context, score float64, words string) string {
	req := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: Prompt(score, words)}},
		Stream:   false,
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(ChatPath)
	if err == nil && resp.IsError() {
		err = fmt.Errorf("coach returned %s", resp.Status())
	}
	if err != nil {
		c.logger.Warn("coach request failed", zap.Error(err))
		return fmt.Sprintf(unreachable, err)
	}

	if out.Message.Content == "" {
		return NoContent
	}
	return out.Message.Content
}

// Disabled is the Coach used when no coach URL is configured.
type Disabled struct{}

// Advise always returns Unavailable.
func (Disabled) Advise(context.Context, float64, string) string {
	return Unavailable
}
