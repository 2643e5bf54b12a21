// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package physio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/physic"
)

// TimestampLayout is the wall-clock format used to key sensor readings.
const TimestampLayout = "2006-01-02 15:04:05"

// Telemetry keys the physiological classifier consumes, in feature order.
const (
	KeyEDA  = "eda_raw"
	KeyBVP  = "bvp_ir_raw"
	KeyTemp = "temp_c"
	KeyAccX = "acc_x_raw"
	KeyAccY = "acc_y_raw"
	KeyAccZ = "acc_z_raw"
)

// FeatureKeys lists the telemetry keys in the order Vitals.Features returns them.
var FeatureKeys = []string{KeyEDA, KeyBVP, KeyTemp, KeyAccX, KeyAccY, KeyAccZ}

var (
	// ErrMalformed is returned for a telemetry line that is not a JSON object.
	ErrMalformed = errors.New("malformed telemetry")
	// ErrBadFeature is returned when a key of interest holds a value that is
	// not a number.
	ErrBadFeature = errors.New("telemetry feature is not a number")
)

// Reading is one parsed telemetry line as stored in the sensor log.
type Reading struct {
	Timestamp string             `json:"timestamp"`
	Payload   map[string]float64 `json:"payload"`
}

// Vitals is the typed view of the keys of interest. Missing keys are 0.
type Vitals struct {
	EDA   float64 `json:"eda_raw"`    // electrodermal activity
	BVPIR float64 `json:"bvp_ir_raw"` // blood volume pulse, IR channel
	TempC float64 `json:"temp_c"`     // skin temperature, °C

	// accelerometer, raw counts
	AccX float64 `json:"acc_x_raw"`
	AccY float64 `json:"acc_y_raw"`
	AccZ float64 `json:"acc_z_raw"`
}

// ParseLine decodes one telemetry line into its numeric fields.
// Non-numeric fields are dropped. A line that is not a JSON object
// yields an error wrapping ErrMalformed.
func ParseLine(line string) (map[string]float64, error) {
	fields, err := decodeObject(line)
	if err != nil {
		return nil, err
	}

	payload := make(map[string]float64, len(fields))
	for k, raw := range fields {
		if string(raw) == "null" {
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		payload[k] = v
	}
	return payload, nil
}

// ParseVitals decodes the keys of interest from one telemetry line for the
// classifier. Absent keys are 0. A present key must hold a number, a numeric
// string or a boolean; anything else (null, "abc", objects) fails with
// ErrBadFeature.
func ParseVitals(line string) (Vitals, error) {
	fields, err := decodeObject(line)
	if err != nil {
		return Vitals{}, err
	}

	payload := make(map[string]float64, len(FeatureKeys))
	for _, k := range FeatureKeys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		v, err := featureValue(raw)
		if err != nil {
			return Vitals{}, fmt.Errorf("%w: %s: %v", ErrBadFeature, k, err)
		}
		payload[k] = v
	}
	return VitalsFrom(payload), nil
}

func decodeObject(line string) (map[string]json.RawMessage, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("%w: empty line", ErrMalformed)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		// "null" decodes without error
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	return fields, nil
}

// featureValue converts one JSON value: numbers as is, numeric strings
// parsed, booleans as 1 or 0.
func featureValue(raw json.RawMessage) (float64, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case nil:
		return 0, errors.New("null")
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}

// VitalsFrom extracts the keys of interest from a payload.
func VitalsFrom(payload map[string]float64) Vitals {
	return Vitals{
		EDA:   payload[KeyEDA],
		BVPIR: payload[KeyBVP],
		TempC: payload[KeyTemp],
		AccX:  payload[KeyAccX],
		AccY:  payload[KeyAccY],
		AccZ:  payload[KeyAccZ],
	}
}

// Vitals returns the typed view of the reading.
func (r Reading) Vitals() Vitals {
	return VitalsFrom(r.Payload)
}

// Features returns the classifier input vector in FeatureKeys order.
func (v Vitals) Features() []float64 {
	return []float64{v.EDA, v.BVPIR, v.TempC, v.AccX, v.AccY, v.AccZ}
}

// Temperature converts the skin temperature to a physic.Temperature.
func (v Vitals) Temperature() physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(v.TempC*float64(physic.Celsius))
}
