// Package queue estimates dialing queue completion windows so callers
// can warn users before launching a large batch.
package queue

import (
	"fmt"
	"math"
)

// Default dialing characteristics of the outbound platform.
const (
	// DefaultCallsPerSecond is the sustained dial rate.
	DefaultCallsPerSecond = 8.0
	// DefaultConcurrencyCap bounds simultaneous in-flight calls.
	DefaultConcurrencyCap = 80
	// DefaultAdvisoryThreshold is the contact count above which an
	// advisory message is shown. The boundary is strictly
	// greater-than: a batch of exactly this size gets no advisory.
	DefaultAdvisoryThreshold = 300
)

// Window is an estimated completion window for dialing a contact
// batch. Hours is only populated for windows of an hour or more.
type Window struct {
	Seconds int `json:"seconds"`
	Minutes int `json:"minutes"`
	Hours   int `json:"hours,omitempty"`
}

// EstimateWindow computes how long dialing contactCount contacts will
// take at the given sustained rate, bounded by the concurrency cap.
// Pure function; non-positive inputs yield a zero window.
func EstimateWindow(contactCount int, callsPerSecond float64, concurrencyCap int) Window {
	if contactCount <= 0 || callsPerSecond <= 0 {
		return Window{}
	}

	rate := callsPerSecond
	if concurrencyCap > 0 && rate > float64(concurrencyCap) {
		rate = float64(concurrencyCap)
	}

	seconds := int(math.Ceil(float64(contactCount) / rate))
	minutes := (seconds + 59) / 60

	w := Window{Seconds: seconds, Minutes: minutes}
	if minutes >= 60 {
		w.Hours = (minutes + 59) / 60
	}
	return w
}

// TimingMessage returns a human-readable advisory for batches above
// the default threshold, or the empty string when the batch is small
// enough to need none.
func TimingMessage(contactCount int) string {
	return TimingMessageAt(contactCount, DefaultAdvisoryThreshold)
}

// TimingMessageAt is TimingMessage with an explicit threshold.
func TimingMessageAt(contactCount, threshold int) string {
	w := EstimateWindow(contactCount, DefaultCallsPerSecond, DefaultConcurrencyCap)
	return TimingMessageFor(contactCount, threshold, w)
}

// TimingMessageFor phrases the advisory from a window the caller
// already computed, so message and window always describe the same
// dialing rates.
func TimingMessageFor(contactCount, threshold int, w Window) string {
	if contactCount <= threshold {
		return ""
	}

	switch {
	case w.Hours > 0:
		return fmt.Sprintf(
			"Large batch: dialing %d contacts will take roughly %d hour(s). Calls are placed over time, not all at once.",
			contactCount, w.Hours)
	case w.Minutes > 1:
		return fmt.Sprintf(
			"Large batch: dialing %d contacts will take roughly %d minutes. Calls are placed over time, not all at once.",
			contactCount, w.Minutes)
	default:
		return fmt.Sprintf(
			"Large batch: dialing %d contacts will take roughly %d seconds. Calls are placed over time, not all at once.",
			contactCount, w.Seconds)
	}
}
