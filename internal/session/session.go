// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package session owns the connection to the bound sensor and the log of
// readings taken from it.
package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relabs-tech/safe_space/internal/physio"
	"github.com/relabs-tech/safe_space/internal/serialport"
)

// Defaults for Config fields left zero.
const (
	DefaultReadTimeout = 2 * time.Second
	DefaultOpenTimeout = 2 * time.Second
)

// MaxLineBytes caps one telemetry line.
const MaxLineBytes = 64 << 10

var (
	// ErrNotConnected is reported when reading with no port bound.
	ErrNotConnected = errors.New("sensor not connected")
	// ErrNoLineEnd is reported when bytes keep arriving but no newline does
	// within the read timeout.
	ErrNoLineEnd = errors.New("no complete line within read timeout")
	// ErrLineTooLong is reported when a line exceeds MaxLineBytes.
	ErrLineTooLong = errors.New("telemetry line too long")
)

// Status classifies the outcome of ReadOne.
type Status int

const (
	// NoData: the read timed out with nothing received.
	NoData Status = iota
	// Parsed: a JSON line was read and recorded.
	Parsed
	// Malformed: a non-empty line that is not telemetry JSON; nothing stored.
	Malformed
	// Disconnected: no port is bound.
	Disconnected
	// ReadFailed: the port returned an I/O error. The session stays bound.
	ReadFailed
)

func (s Status) String() string {
	switch s {
	case NoData:
		return "no_data"
	case Parsed:
		return "parsed"
	case Malformed:
		return "malformed"
	case Disconnected:
		return "disconnected"
	case ReadFailed:
		return "read_failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the outcome of one ReadOne call.
type Result struct {
	Status    Status         `json:"status"`
	Timestamp string         `json:"timestamp,omitempty"`
	Line      string         `json:"line,omitempty"`
	Reading   physio.Reading `json:"-"`
	Err       error          `json:"-"`
}

// Message is a human-readable status line for the result.
func (r Result) Message() string {
	switch r.Status {
	case NoData:
		return "No new data received from the sensor."
	case Parsed:
		return fmt.Sprintf("Time: %s\nData: %s", r.Timestamp, r.Line)
	case Malformed:
		return fmt.Sprintf("Time: %s\nInvalid Data Format: %s", r.Timestamp, r.Line)
	case Disconnected:
		return "Sensor not connected. Select a port first."
	case ReadFailed:
		return fmt.Sprintf("Error reading from sensor: %v", r.Err)
	default:
		return r.Status.String()
	}
}

// Config controls how the session opens and reads the port.
type Config struct {
	BaudRate    uint
	ReadTimeout time.Duration
	OpenTimeout time.Duration
}

// Session is the single owner of the sensor connection. Connect closes any
// previous port before opening a new one, so at most one port is held.
// All methods are safe for concurrent use.
type Session struct {
	open   serialport.OpenFunc
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	// mu guards the port; a read holds it for at most ReadTimeout.
	mu       sync.Mutex
	port     io.ReadWriteCloser
	reader   *bufio.Reader
	portName string
	id       uuid.UUID

	log *Log

	latestMu sync.RWMutex
	latest   string
}

// New creates an unbound session.
func New(open serialport.OpenFunc, cfg Config, logger *zap.Logger) *Session {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = serialport.DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	return &Session{
		open:   open,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		log:    NewLog(),
	}
}

// Connect binds the session to port, closing any previously bound port
// first. An empty name only disconnects. On failure the session is left
// unbound.
func (s *Session) Connect(port string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
	if port == "" {
		return nil
	}

	opts := serialport.Options{BaudRate: s.cfg.BaudRate, ReadTimeout: s.cfg.ReadTimeout}
	conn, err := serialport.OpenTimeout(s.open, port, opts, s.cfg.OpenTimeout)
	if err != nil {
		s.logger.Warn("session: connect failed", zap.String("port", port), zap.Error(err))
		return fmt.Errorf("connect %s: %w", port, err)
	}

	s.port = conn
	s.reader = bufio.NewReader(conn)
	s.portName = port
	s.id = uuid.New()
	s.logger.Info("session: connected",
		zap.String("port", port),
		zap.Uint("baud", s.cfg.BaudRate),
		zap.Stringer("session_id", s.id),
	)
	return nil
}

// Disconnect releases the bound port, if any.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.port == nil {
		return
	}
	if err := s.port.Close(); err != nil {
		s.logger.Warn("session: close failed", zap.String("port", s.portName), zap.Error(err))
	}
	s.logger.Info("session: disconnected", zap.String("port", s.portName), zap.Stringer("session_id", s.id))
	s.port = nil
	s.reader = nil
	s.portName = ""
	s.id = uuid.Nil
}

// ReadOne reads at most one line from the bound port, waiting up to the
// read timeout. Parsed lines are recorded in the log and become the latest
// line; malformed lines leave both untouched.
func (s *Session) ReadOne() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return Result{Status: Disconnected, Err: ErrNotConnected}
	}

	raw, err := s.readLineLocked()
	if err != nil {
		s.logger.Warn("session: read error", zap.String("port", s.portName), zap.Error(err))
		return Result{Status: ReadFailed, Err: err}
	}

	line := strings.TrimSpace(raw)
	if line == "" {
		return Result{Status: NoData}
	}

	ts := s.now().Format(physio.TimestampLayout)
	payload, err := physio.ParseLine(line)
	if err != nil {
		s.logger.Warn("session: invalid data format", zap.String("line", line), zap.Error(err))
		return Result{Status: Malformed, Timestamp: ts, Line: line, Err: err}
	}

	reading := s.log.Record(ts, payload)
	s.latestMu.Lock()
	s.latest = line
	s.latestMu.Unlock()

	s.logger.Debug("session: reading recorded", zap.String("timestamp", ts), zap.String("line", line))
	return Result{Status: Parsed, Timestamp: ts, Line: line, Reading: reading}
}

// readLineLocked reads up to the next newline. A driver timeout (EOF) ends
// the line early with whatever arrived. A device that streams without
// newlines is cut off after ReadTimeout or MaxLineBytes and the partial
// bytes are discarded.
func (s *Session) readLineLocked() (string, error) {
	deadline := time.Now().Add(s.cfg.ReadTimeout)
	var line []byte
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return string(line), nil
			}
			return "", err
		}
		if b == '\n' {
			return string(line), nil
		}

		line = append(line, b)
		if len(line) > MaxLineBytes {
			return "", ErrLineTooLong
		}
		if time.Now().After(deadline) {
			return "", ErrNoLineEnd
		}
	}
}

// LatestLine returns the most recent successfully parsed line, or "".
func (s *Session) LatestLine() string {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	return s.latest
}

// Log returns the session's sensor log.
func (s *Session) Log() *Log {
	return s.log
}

// PortName returns the bound port, or "" when unbound.
func (s *Session) PortName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portName
}

// IsOpen reports whether a port is bound.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// ID returns the identifier of the current binding, or uuid.Nil.
func (s *Session) ID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}
