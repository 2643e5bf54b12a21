// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/relabs-tech/safe_space/internal/physio"
)

// Log is the in-memory sensor log: readings keyed by timestamp in insertion
// order. A second reading under an existing timestamp replaces the stored
// payload and keeps its position.
type Log struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]physio.Reading
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{entries: make(map[string]physio.Reading)}
}

// Record stores payload under timestamp.
func (l *Log) Record(timestamp string, payload map[string]float64) physio.Reading {
	r := physio.Reading{Timestamp: timestamp, Payload: payload}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[timestamp]; !ok {
		l.order = append(l.order, timestamp)
	}
	l.entries[timestamp] = r
	return r
}

// Get returns the reading stored under timestamp.
func (l *Log) Get(timestamp string) (physio.Reading, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.entries[timestamp]
	return r, ok
}

// Len returns the number of stored readings.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Entries returns a copy of the readings in insertion order.
func (l *Log) Entries() []physio.Reading {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]physio.Reading, 0, len(l.order))
	for _, ts := range l.order {
		out = append(out, l.entries[ts])
	}
	return out
}

// MarshalJSON renders the log as a JSON object keyed by timestamp, keeping
// insertion order.
func (l *Log) MarshalJSON() ([]byte, error) {
	entries := l.Entries()

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(r.Timestamp)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
