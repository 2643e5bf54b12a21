// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/safe_space/internal/app"
	"github.com/relabs-tech/safe_space/internal/session"
	"github.com/relabs-tech/safe_space/internal/stress"
)

var fuseFlags struct {
	audio, facial, physio, survey string
	words                         string
	port                          string
	jsonOut                       bool
}

var fuseCmd = &cobra.Command{
	Use:   "fuse",
	Short: "Fuse modality results into one stress assessment",
	Long: `fuse takes each modality as LABEL:CONFIDENCE, for example
--audio stressed:0.8 --survey not_stressed:0.6. Omitted modalities are
unavailable. Without --physio the sensor is read once from --port.`,
	Example: `  safespace fuse --audio stressed:0.9 --facial stressed:0.85 --survey not_stressed:0.9
  safespace fuse --audio stressed:0.7 --port /dev/ttyUSB0 --words "exam week"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := fuseRequest()
		if err != nil {
			return err
		}

		sys, err := newSystem()
		if err != nil {
			return err
		}
		defer sys.Close()

		if req.Physio == nil && fuseFlags.port != "" {
			if err := sys.Session.Connect(fuseFlags.port); err != nil {
				return err
			}
			res := sys.Session.ReadOne()
			if res.Status != session.Parsed {
				fmt.Fprintln(cmd.ErrOrStderr(), res.Message())
			}
		}

		report := app.NewAssessor(sys).Assess(context.Background(), req)
		if fuseFlags.jsonOut {
			return printJSON(cmd.OutOrStdout(), report)
		}
		fmt.Fprint(cmd.OutOrStdout(), report.Summary())
		return nil
	},
}

func init() {
	f := fuseCmd.Flags()
	f.StringVar(&fuseFlags.audio, "audio", "", "audio result LABEL:CONFIDENCE")
	f.StringVar(&fuseFlags.facial, "facial", "", "facial result LABEL:CONFIDENCE")
	f.StringVar(&fuseFlags.physio, "physio", "", "physiological result LABEL:CONFIDENCE (default: read the sensor)")
	f.StringVar(&fuseFlags.survey, "survey", "", "survey result LABEL:CONFIDENCE")
	f.StringVar(&fuseFlags.words, "words", "", "what the user said, passed to the coach")
	f.StringVar(&fuseFlags.port, "port", "", "serial port to read the physiological sample from")
	f.BoolVar(&fuseFlags.jsonOut, "json", false, "print the report as JSON")
}

func fuseRequest() (app.Request, error) {
	req := app.Request{Words: fuseFlags.words}
	for _, m := range []struct {
		name  string
		value string
		dst   *stress.ModalityResult
	}{
		{"audio", fuseFlags.audio, &req.Audio},
		{"facial", fuseFlags.facial, &req.Facial},
		{"survey", fuseFlags.survey, &req.Survey},
	} {
		r, err := parseModality(m.value)
		if err != nil {
			return req, fmt.Errorf("--%s: %w", m.name, err)
		}
		*m.dst = r
	}

	if fuseFlags.physio != "" {
		r, err := parseModality(fuseFlags.physio)
		if err != nil {
			return req, fmt.Errorf("--physio: %w", err)
		}
		req.Physio = &r
	}
	return req, nil
}

// parseModality reads LABEL:CONFIDENCE. An empty value is unavailable; a
// bare label gets confidence 1.
func parseModality(s string) (stress.ModalityResult, error) {
	if strings.TrimSpace(s) == "" {
		return stress.UnavailableResult(), nil
	}

	labelText, confText, hasConf := strings.Cut(s, ":")
	label, err := stress.ParseLabel(labelText)
	if err != nil {
		return stress.ModalityResult{}, err
	}
	if label == stress.Unavailable {
		return stress.UnavailableResult(), nil
	}
	if !hasConf {
		return stress.ModalityResult{Label: label, Confidence: 1}, nil
	}

	conf, err := strconv.ParseFloat(strings.TrimSpace(confText), 64)
	if err != nil {
		return stress.ModalityResult{}, fmt.Errorf("invalid confidence %q: %w", confText, err)
	}
	if conf < 0 || conf > 1 {
		return stress.ModalityResult{}, fmt.Errorf("confidence %v outside [0,1]", conf)
	}
	return stress.ModalityResult{Label: label, Confidence: conf}, nil
}
