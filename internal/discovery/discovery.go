// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package discovery finds the sensor among the visible serial ports by
// sending PING and waiting for PONG on each port in turn.
package discovery

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/relabs-tech/safe_space/internal/serialport"
)

// Handshake bytes.
const (
	Ping = "PING\n"
	Pong = "PONG"
)

// Defaults for Config fields left zero.
const (
	DefaultTimeout = time.Second
	DefaultSettle  = 2 * time.Second
)

var (
	// ErrNoPorts is returned by Discover when there is nothing to probe.
	ErrNoPorts = errors.New("no serial ports found")
	// ErrNotFound is returned by Discover when no port answered.
	ErrNotFound = errors.New("sensor not found on any port")
	// ErrNoHandshake means a port opened but did not answer PONG.
	ErrNoHandshake = errors.New("no handshake reply")
)

// Config controls a probe.
type Config struct {
	BaudRate uint
	// Timeout bounds the open, the PING write and the reply read.
	Timeout time.Duration
	// Settle is how long to wait after opening before sending PING; many
	// USB-serial chips reset the board when the port opens.
	Settle time.Duration
}

// Prober runs handshakes against serial ports.
type Prober struct {
	open   serialport.OpenFunc
	cfg    Config
	sleep  func(time.Duration)
	logger *zap.Logger
}

// NewProber creates a Prober that opens ports with open.
func NewProber(open serialport.OpenFunc, cfg Config, logger *zap.Logger) *Prober {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = serialport.DefaultBaudRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	return &Prober{
		open:   open,
		cfg:    cfg,
		sleep:  time.Sleep,
		logger: logger,
	}
}

// Probe opens port, performs the handshake and closes the port again.
// It returns nil only if the device answered PONG.
func (p *Prober) Probe(port string) error {
	opts := serialport.Options{BaudRate: p.cfg.BaudRate, ReadTimeout: p.cfg.Timeout}

	conn, err := serialport.OpenTimeout(p.open, port, opts, p.cfg.Timeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	p.sleep(p.cfg.Settle)

	if err := serialport.WriteTimeout(conn, []byte(Ping), p.cfg.Timeout); err != nil {
		return fmt.Errorf("send ping: %w", err)
	}

	line, err := serialport.ReadLineTimeout(conn, p.cfg.Timeout)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}

	reply := strings.TrimRightFunc(line, unicode.IsSpace)
	if reply != Pong {
		return fmt.Errorf("%w: got %q", ErrNoHandshake, reply)
	}
	return nil
}

// Scan starts a fresh discovery pass over ports, probed in the given order.
func (p *Prober) Scan(ports []string) *Scan {
	return &Scan{
		prober: p,
		ports:  append([]string(nil), ports...),
	}
}

// Events returns the discovery pass as a lazy sequence. Each iteration
// starts a new pass; stopping early leaves no port open.
func (p *Prober) Events(ports []string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		s := p.Scan(ports)
		for {
			ev, ok := s.Next()
			if !ok || !yield(ev) {
				return
			}
		}
	}
}

// Discover runs a full pass and returns the port that answered.
func (p *Prober) Discover(ports []string) (string, error) {
	for ev := range p.Events(ports) {
		switch ev.Kind {
		case Found:
			return ev.Port, nil
		case NoPorts:
			return "", ErrNoPorts
		case NotFound:
			return "", ErrNotFound
		}
	}
	return "", ErrNotFound
}

type scanState int

const (
	stateStart scanState = iota
	stateAnnounce
	stateProbe
	stateExhausted
	stateDone
)

// Scan is one discovery pass. Each call to Next performs at most one probe.
// A Scan is not safe for concurrent use.
type Scan struct {
	prober *Prober
	ports  []string
	idx    int
	state  scanState
}

// Next advances the pass and returns the next event, or false once a
// terminal event has been returned.
func (s *Scan) Next() (Event, bool) {
	ev, ok := s.step()
	if ok {
		s.log(ev)
	}
	return ev, ok
}

func (s *Scan) step() (Event, bool) {
	switch s.state {
	case stateStart:
		if len(s.ports) == 0 {
			s.state = stateDone
			return Event{Kind: NoPorts}, true
		}
		s.state = stateAnnounce
		return s.step()

	case stateAnnounce:
		s.state = stateProbe
		return Event{Kind: Probing, Port: s.ports[s.idx]}, true

	case stateProbe:
		port := s.ports[s.idx]
		if err := s.prober.Probe(port); err != nil {
			s.idx++
			if s.idx < len(s.ports) {
				s.state = stateAnnounce
			} else {
				s.state = stateExhausted
			}
			return Event{Kind: Skipped, Port: port, Err: err}, true
		}
		s.state = stateDone
		return Event{Kind: Found, Port: port}, true

	case stateExhausted:
		s.state = stateDone
		return Event{Kind: NotFound}, true
	}
	return Event{}, false
}

func (s *Scan) log(ev Event) {
	fields := []zap.Field{zap.Stringer("event", ev.Kind)}
	if ev.Port != "" {
		fields = append(fields, zap.String("port", ev.Port))
	}
	switch ev.Kind {
	case Skipped:
		s.prober.logger.Info("discovery: port skipped", append(fields, zap.Error(ev.Err))...)
	case Found:
		s.prober.logger.Info("discovery: sensor found", fields...)
	case NoPorts, NotFound:
		s.prober.logger.Warn("discovery: "+ev.Message(), fields...)
	default:
		s.prober.logger.Debug("discovery: probing port", fields...)
	}
}
