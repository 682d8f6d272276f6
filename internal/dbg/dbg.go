// Package dbg provides gated trace logging for the decoder's internal
// packages. It mirrors the teacher library's internal/dbg: a single
// run-time switch (Enabled, set from BUTTERFLY_DEBUG) that keeps trace
// formatting off the hot path when disabled.
package dbg

import (
	"fmt"
	"log"
	"os"
)

// Enabled turns on trace logging for every package that calls Log. It is a
// var, not a const, so tests can flip it; production code leaves it false.
var Enabled = os.Getenv("BUTTERFLY_DEBUG") != ""

var logger = log.New(os.Stderr, "butterfly: ", log.Lmicroseconds)

// Log emits a trace line tagged with op if Enabled is true. The line is
// only formatted when tracing is on; the arguments themselves are evaluated
// by the caller either way.
func Log(op, format string, args ...any) {
	if !Enabled {
		return
	}
	logger.Printf("%-8s "+format, append([]any{op}, args...)...)
}

// Value is a debug-only payload: it is cheap to carry around in a struct
// even when empty, and reads back the empty value when tracing is off.
type Value[T any] struct {
	v T
	set bool
}

// Get returns a pointer to the contained value, regardless of Enabled. It is
// the caller's responsibility to only populate it under Enabled.
func (d *Value[T]) Get() *T {
	d.set = true
	return &d.v
}

// String implements fmt.Stringer for debug printing.
func (d Value[T]) String() string {
	if !d.set {
		return "<unset>"
	}
	return fmt.Sprintf("%+v", d.v)
}
