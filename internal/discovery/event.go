// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package discovery

import (
	"encoding/json"
	"fmt"
)

// Kind is the type of a discovery progress event.
type Kind int

const (
	// Probing is emitted before a port is tried.
	Probing Kind = iota
	// Found is emitted when a port answered the handshake. Terminal.
	Found
	// Skipped is emitted when a port failed to open or did not answer.
	Skipped
	// NoPorts is emitted when there was nothing to probe. Terminal.
	NoPorts
	// NotFound is emitted after every port was skipped. Terminal.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Probing:
		return "probing"
	case Found:
		return "found"
	case Skipped:
		return "skipped"
	case NoPorts:
		return "no_ports"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is one step of a discovery pass.
type Event struct {
	Kind Kind
	Port string
	// Err is why a port was skipped.
	Err error
}

// MarshalJSON renders the event with its status message, as streamed to
// websocket clients and published over MQTT.
func (e Event) MarshalJSON() ([]byte, error) {
	wire := struct {
		Kind    Kind   `json:"kind"`
		Port    string `json:"port,omitempty"`
		Message string `json:"message"`
		Error   string `json:"error,omitempty"`
	}{
		Kind:    e.Kind,
		Port:    e.Port,
		Message: e.Message(),
	}
	if e.Err != nil {
		wire.Error = e.Err.Error()
	}
	return json.Marshal(wire)
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Kind == Found || e.Kind == NoPorts || e.Kind == NotFound
}

// Message is the human-readable status line for the event.
func (e Event) Message() string {
	switch e.Kind {
	case Probing:
		return fmt.Sprintf("Testing port: %s...", e.Port)
	case Found:
		return fmt.Sprintf("Sensor found on %s.", e.Port)
	case Skipped:
		return fmt.Sprintf("No sensor on %s. Skipping.", e.Port)
	case NoPorts:
		return "No serial ports found."
	case NotFound:
		return "Auto-detection failed. Please select the port manually."
	default:
		return e.Kind.String()
	}
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%v)", e.Message(), e.Err)
	}
	return e.Message()
}
