// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package serialport

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
)

// DefaultPatterns returns the device globs that usually hold USB-serial and
// Bluetooth-serial adapters on this OS. Built-in UARTs (ttyS*) are left out:
// most of them are phantom ports that each cost a probe.
func DefaultPatterns() []string {
	switch runtime.GOOS {
	case "linux":
		return []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/rfcomm*"}
	case "darwin":
		return []string{"/dev/cu.usbserial*", "/dev/cu.usbmodem*", "/dev/cu.SLAB_USBtoUART*", "/dev/cu.wchusbserial*"}
	case "freebsd", "openbsd", "netbsd":
		return []string{"/dev/cuaU*"}
	default:
		return nil
	}
}

// List expands patterns into a sorted, de-duplicated list of port names.
func List(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var ports []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("port pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			ports = append(ports, m)
		}
	}
	sort.Strings(ports)
	return ports, nil
}
