package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/safe_space/internal/stress"
)

func TestParseModality(t *testing.T) {
	tests := []struct {
		in   string
		want stress.ModalityResult
	}{
		{"", stress.UnavailableResult()},
		{"unavailable:0.9", stress.UnavailableResult()},
		{"stressed:0.8", stress.ModalityResult{Label: stress.Stressed, Confidence: 0.8}},
		{"not_stressed: 0.6", stress.ModalityResult{Label: stress.NotStressed, Confidence: 0.6}},
		{"calm", stress.ModalityResult{Label: stress.NotStressed, Confidence: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseModality(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseModality_Errors(t *testing.T) {
	for _, in := range []string{"anxious:0.5", "stressed:high", "stressed:1.5"} {
		_, err := parseModality(in)
		assert.Error(t, err, in)
	}
}

func TestFuseRequest(t *testing.T) {
	fuseFlags.audio = "stressed:0.9"
	fuseFlags.physio = "not_stressed:0.7"
	fuseFlags.words = "busy week"
	t.Cleanup(func() { fuseFlags.audio, fuseFlags.physio, fuseFlags.words = "", "", "" })

	req, err := fuseRequest()
	require.NoError(t, err)
	assert.Equal(t, stress.Stressed, req.Audio.Label)
	assert.Equal(t, stress.Unavailable, req.Facial.Label)
	require.NotNil(t, req.Physio)
	assert.Equal(t, 0.7, req.Physio.Confidence)
	assert.Equal(t, "busy week", req.Words)

	fuseFlags.survey = "maybe"
	t.Cleanup(func() { fuseFlags.survey = "" })
	_, err = fuseRequest()
	assert.ErrorContains(t, err, "--survey")
}
