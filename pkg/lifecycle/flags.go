package lifecycle

import "sync/atomic"

// Flag is a monotonic write-once boolean. It starts false and can only flip
// to true exactly once.
type Flag struct {
	v atomic.Bool
}

// Set flips the flag to true. It returns true only for the first caller, so
// shutdown entry points are idempotent.
func (f *Flag) Set() bool {
	return f.v.CompareAndSwap(false, true)
}

// IsSet reports whether the flag has been flipped.
func (f *Flag) IsSet() bool {
	return f.v.Load()
}
