package testkit

import (
	"sync"
	"testing"
)

var seamMu sync.Mutex

// Swap replaces the value behind target for the duration of the test.
// Typical use is stubbing clock or sleep function fields so retry timing
// can be asserted without wall-clock waits; the original is restored on
// test cleanup
func Swap[T any](t *testing.T, target *T, replacement T) {
	t.Helper()
	orig := *target
	*target = replacement
	t.Cleanup(func() { *target = orig })
}

// Serial holds a process-wide lock until the test finishes. Tests that
// mutate shared package state call this first so they never overlap
func Serial(t *testing.T) {
	t.Helper()
	seamMu.Lock()
	t.Cleanup(func() { seamMu.Unlock() })
}
