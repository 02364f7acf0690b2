// Package timebase maps device-clock timestamps onto the host clock.
package timebase

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"

	"go.viam.com/rsnode/device"
	"go.viam.com/rsnode/logging"
)

// Anchor pairs a host instant with the device timestamp observed at that instant.
type Anchor struct {
	Host   time.Time
	Device float64 // milliseconds
}

// TimeBase is anchored once, by whichever stream delivers the first sample.
type TimeBase struct {
	clock  clock.Clock
	logger logging.Logger
	anchor *atomic.Pointer[Anchor]
}

// New returns an unanchored TimeBase reading host time from clk.
func New(clk clock.Clock, logger logging.Logger) *TimeBase {
	return &TimeBase{
		clock:  clk,
		logger: logger,
		anchor: atomic.NewPointer[Anchor](nil),
	}
}

// EnsureAnchored records (host now, deviceMs) if no anchor exists yet and returns the anchor in
// effect. Exactly one caller wins a concurrent first arrival; the rest get the winner's anchor.
func (tb *TimeBase) EnsureAnchored(deviceMs float64, domain device.TimestampDomain) Anchor {
	if existing := tb.anchor.Load(); existing != nil {
		return *existing
	}
	candidate := &Anchor{Host: tb.clock.Now(), Device: deviceMs}
	if !tb.anchor.CompareAndSwap(nil, candidate) {
		return *tb.anchor.Load()
	}
	if !domain.HardwareBacked() {
		tb.logger.Warnw("frame timestamps are not hardware clock based; consider enabling global time or the kernel patches",
			"domain", domain.String())
	}
	tb.logger.Debugw("time base anchored", "host", candidate.Host, "device_ms", deviceMs)
	return *candidate
}

// Anchored reports whether an anchor exists.
func (tb *TimeBase) Anchored() bool {
	return tb.anchor.Load() != nil
}

// Anchor returns the current anchor, if any.
func (tb *TimeBase) Anchor() (Anchor, bool) {
	a := tb.anchor.Load()
	if a == nil {
		return Anchor{}, false
	}
	return *a, true
}

// ToHostTime converts a device timestamp in milliseconds to host time. The delta is scaled to
// nanoseconds before it is added to the host anchor. Before anchoring the host clock is returned.
func (tb *TimeBase) ToHostTime(deviceMs float64) time.Time {
	a := tb.anchor.Load()
	if a == nil {
		return tb.clock.Now()
	}
	return a.Host.Add(time.Duration(math.Round((deviceMs - a.Device) * 1e6)))
}

// Elapsed is the device time since the anchor.
func (tb *TimeBase) Elapsed(deviceMs float64) time.Duration {
	a := tb.anchor.Load()
	if a == nil {
		return 0
	}
	return time.Duration(math.Round((deviceMs - a.Device) * 1e6))
}
