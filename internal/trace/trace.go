// Package trace implements the W3C trace-context header: parsing and
// generating traceparent values and deriving child spans for outbound calls.
package trace

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// Header is the canonical traceparent header name.
const Header = "traceparent"

// FlagSampled marks the trace as sampled.
const FlagSampled byte = 0x01

var traceparentRe = regexp.MustCompile(`^([0-9a-f]{2})-([0-9a-f]{32})-([0-9a-f]{16})-([0-9a-f]{2})$`)

// Context is one parsed or generated traceparent value.
type Context struct {
	TraceID string
	SpanID  string
	Flags   byte
}

// New generates a sampled context with fresh random IDs.
func New() Context {
	return Context{
		TraceID: randomHex(16),
		SpanID:  randomHex(8),
		Flags:   FlagSampled,
	}
}

// Parse validates a traceparent header. Only version 00 is accepted, and
// the all-zero trace and span IDs are rejected as reserved.
func Parse(header string) (Context, error) {
	m := traceparentRe.FindStringSubmatch(header)
	if m == nil {
		return Context{}, fmt.Errorf("malformed traceparent %q", header)
	}
	version, traceID, spanID, flagsHex := m[1], m[2], m[3], m[4]

	if version == "ff" {
		return Context{}, fmt.Errorf("forbidden traceparent version ff")
	}
	if version != "00" {
		return Context{}, fmt.Errorf("unsupported traceparent version %q", version)
	}
	if allZero(traceID) {
		return Context{}, fmt.Errorf("traceparent trace-id is all zeros")
	}
	if allZero(spanID) {
		return Context{}, fmt.Errorf("traceparent parent-id is all zeros")
	}

	flags, err := hex.DecodeString(flagsHex)
	if err != nil {
		return Context{}, fmt.Errorf("traceparent flags: %w", err)
	}

	return Context{TraceID: traceID, SpanID: spanID, Flags: flags[0]}, nil
}

// String renders the canonical version-00 header value.
func (c Context) String() string {
	return fmt.Sprintf("00-%s-%s-%02x", c.TraceID, c.SpanID, c.Flags)
}

// Child returns a context for an outbound call: same trace, new span, same
// flags.
func (c Context) Child() Context {
	return Context{TraceID: c.TraceID, SpanID: randomHex(8), Flags: c.Flags}
}

// Sampled reports whether the sampled flag is set.
func (c Context) Sampled() bool {
	return c.Flags&FlagSampled != 0
}

func allZero(s string) bool {
	for _, r := range s {
		if r != '0' {
			return false
		}
	}
	return true
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
