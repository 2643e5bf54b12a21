// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package serialport

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"os"
	"sync"
	"time"
)

// MockPortName is the port name served by the simulated sensor.
const MockPortName = "mock"

// mockDevice simulates the sensor firmware: it answers PING with PONG and
// otherwise streams one telemetry line per read with smoothly changing values.
type mockDevice struct {
	mu      sync.Mutex
	start   time.Time
	pending bytes.Buffer
	inbound bytes.Buffer
	closed  bool
}

// NewMockDevice creates a simulated sensor connection.
func NewMockDevice() io.ReadWriteCloser {
	return &mockDevice{start: time.Now()}
}

// WithMock wraps open so that MockPortName opens a simulated sensor.
func WithMock(open OpenFunc) OpenFunc {
	return func(name string, opts Options) (io.ReadWriteCloser, error) {
		if name == MockPortName {
			return NewMockDevice(), nil
		}
		return open(name, opts)
	}
}

func (m *mockDevice) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, os.ErrClosed
	}

	m.inbound.Write(p)
	for {
		line, err := m.inbound.ReadString('\n')
		if err != nil {
			// keep the partial command for the next write
			m.inbound.Reset()
			m.inbound.WriteString(line)
			break
		}
		if bytes.Equal(bytes.TrimSpace([]byte(line)), []byte("PING")) {
			m.pending.WriteString("PONG\n")
		}
	}
	return len(p), nil
}

func (m *mockDevice) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, os.ErrClosed
	}

	if m.pending.Len() == 0 {
		m.pending.Write(m.nextLine())
	}
	return m.pending.Read(p)
}

func (m *mockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockDevice) nextLine() []byte {
	elapsed := time.Since(m.start).Seconds()

	sample := map[string]float64{
		"eda_raw":    2.0 + 0.5*math.Sin(elapsed*0.2),
		"bvp_ir_raw": 50000 + 1500*math.Sin(elapsed*2*math.Pi*1.2),
		"temp_c":     33.5 + 0.3*math.Cos(elapsed*0.05),
		"acc_x_raw":  120 * math.Sin(elapsed),
		"acc_y_raw":  80 * math.Cos(elapsed*0.7),
		"acc_z_raw":  16384,
	}

	b, _ := json.Marshal(sample)
	return append(b, '\n')
}
