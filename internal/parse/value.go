// Package parse turns loosely formatted device and cloud payloads into typed values.
package parse

import (
	"strconv"
	"strings"
)

// Uint16 parses s, falling back to zero when it is not a valid uint16.
// Telemetry samples are frequently garbled and must not fail a whole refresh.
func Uint16(s string) uint16 {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0
	}
	return uint16(n)
}

// Uint32 parses s, falling back to zero.
func Uint32(s string) uint32 {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

// Bool parses s, falling back to false.
func Bool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return b
}
