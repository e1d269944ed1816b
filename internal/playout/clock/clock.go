// Package clock implements the output cadence clock: the tick loop's
// only suspension point. It converts a frame index into an absolute
// wall-monotonic deadline using exact rational arithmetic and blocks the
// caller until that deadline via a pluggable WaitStrategy.
package clock

import (
	"time"

	"github.com/alxayo/playout-engine/internal/playout/rationalfps"
)

// TimeSource is one of the engine's polymorphic boundaries: {NowUtcMs}.
// The production variant wraps time.Now; tests inject a deterministic
// variant that only advances when told to.
type TimeSource interface {
	NowUtcMs() int64
	NowMonotonic() time.Time
}

// WaitStrategy is one of the engine's polymorphic boundaries: {WaitUntil}.
// The production variant sleeps on the real wall clock; the test variant
// advances a virtual clock by exactly one frame per call with no real
// sleeping.
type WaitStrategy interface {
	WaitUntil(deadline time.Time)
}

// RealTime is the production TimeSource.
type RealTime struct{}

func (RealTime) NowUtcMs() int64            { return time.Now().UnixMilli() }
func (RealTime) NowMonotonic() time.Time    { return time.Now() }

// RealWait is the production WaitStrategy: it sleeps until the deadline.
type RealWait struct{}

func (RealWait) WaitUntil(deadline time.Time) {
	d := time.Until(deadline)
	if d > 0 {
		time.Sleep(d)
	}
}

// OutputClock converts tick index <-> wall-clock deadline <-> PTS using
// exact rational arithmetic; no floating point is used anywhere.
type OutputClock struct {
	fps          rationalfps.FPS
	sessionStart time.Time
	wait         WaitStrategy
}

// New constructs an OutputClock anchored at sessionStart, the
// monotonic timestamp recorded when the session began.
func New(fps rationalfps.FPS, sessionStart time.Time, wait WaitStrategy) *OutputClock {
	if wait == nil {
		wait = RealWait{}
	}
	return &OutputClock{fps: fps, sessionStart: sessionStart, wait: wait}
}

// DeadlineFor returns the wall-monotonic deadline for tick N:
// session_start + N*frame_duration, computed without float round-off.
func (c *OutputClock) DeadlineFor(n int64) time.Time {
	return c.sessionStart.Add(time.Duration(c.fps.DurationFromFrames(n)))
}

// FrameIndexToPts90k converts a session frame index to a 90kHz PTS.
func (c *OutputClock) FrameIndexToPts90k(n int64) int64 {
	return c.fps.FrameIndexToPts90k(n)
}

// WaitForFrame blocks until the deadline for tick N via the configured
// WaitStrategy. This is the tick thread's only suspension point.
func (c *OutputClock) WaitForFrame(n int64) {
	c.wait.WaitUntil(c.DeadlineFor(n))
}

// FPS returns the clock's configured output frame rate.
func (c *OutputClock) FPS() rationalfps.FPS { return c.fps }

// SessionStart returns the monotonic anchor the clock was built with.
func (c *OutputClock) SessionStart() time.Time { return c.sessionStart }

// VirtualWait is the deterministic WaitStrategy used by tests: it
// advances an internal virtual clock by exactly one frame per call and
// never sleeps.
type VirtualWait struct {
	Now time.Time
}

// NewVirtualWait constructs a VirtualWait anchored at start.
func NewVirtualWait(start time.Time) *VirtualWait {
	return &VirtualWait{Now: start}
}

// WaitUntil advances the virtual clock to the deadline instantly.
func (v *VirtualWait) WaitUntil(deadline time.Time) {
	if deadline.After(v.Now) {
		v.Now = deadline
	}
}
