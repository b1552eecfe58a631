// Package time holds small helpers over the standard time package
package time

import "time"

// Ptr converts t into the optional form used by report snapshots: nil for
// the zero instant, a pointer otherwise
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
