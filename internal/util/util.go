package util

import "time"

// Ptr returns a pointer to the given value.
// This is a generic helper for creating pointers to literals.
func Ptr[T any](v T) *T {
	return &v
}

// LaterTime returns the later of two times.
func LaterTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// MinutesBetween returns the whole minutes from a to b, negative if b < a.
func MinutesBetween(a, b time.Time) int {
	return int(b.Sub(a) / time.Minute)
}
