// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package serialport opens serial devices with bounded open, write and read
// times, and lists the candidate ports visible on this machine.
package serialport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
)

// DefaultBaudRate is the rate the sensor firmware talks at.
const DefaultBaudRate = 115200

// ErrTimeout is returned when an open or write does not finish in time.
var ErrTimeout = errors.New("serial operation timed out")

// Options describes how to open a port.
type Options struct {
	BaudRate uint
	// ReadTimeout bounds a single read. A read that times out with no data
	// returns io.EOF with zero bytes.
	ReadTimeout time.Duration
}

// OpenFunc opens the named port. Serial is the real implementation; tests
// and mock mode substitute their own.
type OpenFunc func(name string, opts Options) (io.ReadWriteCloser, error)

// Serial opens a hardware serial port, 8N1, no flow control.
func Serial(name string, opts Options) (io.ReadWriteCloser, error) {
	baud := opts.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}

	serialOpts := serial.OpenOptions{
		PortName:              name,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		MinimumReadSize:       0,
		InterCharacterTimeout: interCharTimeoutMS(opts.ReadTimeout),
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return port, nil
}

// interCharTimeoutMS converts a read timeout to the driver's unit: whole
// tenths of a second, at least one, at most 25.5s.
func interCharTimeoutMS(d time.Duration) uint {
	tenths := (d + 99*time.Millisecond) / (100 * time.Millisecond)
	if tenths < 1 {
		tenths = 1
	}
	if tenths > 255 {
		tenths = 255
	}
	return uint(tenths) * 100
}

// OpenTimeout calls open and gives up after timeout. A port that opens after
// the deadline is closed as soon as it arrives.
func OpenTimeout(open OpenFunc, name string, opts Options, timeout time.Duration) (io.ReadWriteCloser, error) {
	type result struct {
		port io.ReadWriteCloser
		err  error
	}

	// unbuffered: the opener either hands the port over or sees abandoned
	done := make(chan result)
	abandoned := make(chan struct{})

	go func() {
		port, err := open(name, opts)
		select {
		case done <- result{port: port, err: err}:
		case <-abandoned:
			if port != nil {
				port.Close()
			}
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.port, r.err
	case <-timer.C:
		close(abandoned)
		return nil, fmt.Errorf("open %s: %w", name, ErrTimeout)
	}
}

// WriteTimeout writes p to port and gives up after timeout. On timeout the
// port is closed, which unblocks the pending write.
func WriteTimeout(port io.WriteCloser, p []byte, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		_, err := port.Write(p)
		done <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		port.Close()
		return fmt.Errorf("write: %w", ErrTimeout)
	}
}

// ReadLineTimeout reads one '\n'-terminated line from port. A read that ends
// without a newline (driver timeout, EOF) returns what arrived. If nothing
// finishes within timeout the port is closed and ErrTimeout returned.
func ReadLineTimeout(port io.ReadCloser, timeout time.Duration) (string, error) {
	type result struct {
		line string
		err  error
	}

	done := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(port).ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = nil
		}
		done <- result{line: line, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.line, r.err
	case <-timer.C:
		port.Close()
		return "", fmt.Errorf("read: %w", ErrTimeout)
	}
}
