// Package rationalfps implements exact rational-number frame-rate
// arithmetic. Every frame-count, tick-time, fence, and budget
// computation in the engine uses this type exclusively; there is no
// floating-point derivation of durations anywhere on the hot path.
package rationalfps

import "fmt"

// FPS is an ordered pair (Num, Den) of positive integers denoting frame
// rate as an exact ratio, e.g. {30000, 1001} for 29.97 fps.
type FPS struct {
	Num int64
	Den int64
}

// New validates and constructs an FPS. Num and Den must both be positive.
func New(num, den int64) (FPS, error) {
	if num <= 0 || den <= 0 {
		return FPS{}, fmt.Errorf("rationalfps: num and den must be positive, got %d/%d", num, den)
	}
	return FPS{Num: num, Den: den}, nil
}

// MustNew is New but panics on invalid input; intended for package-level
// standard-rate constants, never for values derived from external input.
func MustNew(num, den int64) FPS {
	f, err := New(num, den)
	if err != nil {
		panic(err)
	}
	return f
}

// Standard broadcast frame rates, expressed as exact fractions.
var (
	Standard23_976 = MustNew(24000, 1001)
	Standard24     = MustNew(24, 1)
	Standard25     = MustNew(25, 1)
	Standard29_97  = MustNew(30000, 1001)
	Standard30     = MustNew(30, 1)
	Standard59_94  = MustNew(60000, 1001)
	Standard60     = MustNew(60, 1)
)

// FrameDurationNs returns the exact frame duration in nanoseconds,
// truncated toward zero (nanosecond precision is already below any
// supported frame rate's period granularity needed for one frame; the
// remainder is tracked separately by DurationFromFrames for exactness
// over many frames).
func (f FPS) FrameDurationNs() int64 {
	return 1_000_000_000 * f.Den / f.Num
}

// FrameDurationUs returns the frame duration in microseconds, truncated
// toward zero (33366 for 29.97fps).
func (f FPS) FrameDurationUs() int64 {
	return 1_000_000 * f.Den / f.Num
}

// FrameDurationMs returns the frame duration in milliseconds, truncated
// toward zero (33 for 29.97fps).
func (f FPS) FrameDurationMs() int64 {
	return 1_000 * f.Den / f.Num
}

// DurationFromFrames returns the exact accumulated duration, in
// nanoseconds, of N frames: N * 1e9 * den / num. Computed as a single
// rational multiplication rather than N additions of a rounded per-frame
// duration, so there is zero accumulated drift versus the rational
// formula over arbitrarily many frames.
func (f FPS) DurationFromFrames(n int64) int64 {
	return n * 1_000_000_000 * f.Den / f.Num
}

// FramesFromDurationCeil returns the minimum number of frames whose
// accumulated duration (in milliseconds) is >= ms: ceil(ms * num / (den * 1000)).
func (f FPS) FramesFromDurationCeil(ms int64) int64 {
	return ceilDiv(ms*f.Num, f.Den*1000)
}

// FrameIndexToPts90k converts a session frame index to a 90kHz clock
// PTS value: N * 90000 * den / num.
func (f FPS) FrameIndexToPts90k(n int64) int64 {
	return n * 90000 * f.Den / f.Num
}

// BlockFenceFrame computes the authoritative block-fence frame index:
// ceil((endUTCMs - sessionEpochUTCMs) * num / (den * 1000)). This is the
// first session frame owned by the next block.
func (f FPS) BlockFenceFrame(sessionEpochUTCMs, endUTCMs int64) int64 {
	return f.FramesFromDurationCeil(endUTCMs - sessionEpochUTCMs)
}

// ceilDiv computes ceil(a/b) for positive b using integer-only arithmetic.
// a may be negative (callers may pass a negative delta); Go's truncating
// division toward zero requires an explicit correction for negative a.
func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		panic("rationalfps: division by non-positive denominator")
	}
	q := a / b
	r := a % b
	if r > 0 {
		q++
	}
	return q
}

// Equal reports whether two FPS values denote the same exact ratio, even
// if expressed with different (num, den) representations (e.g. 60/1 vs
// 120/2).
func (f FPS) Equal(o FPS) bool {
	return f.Num*o.Den == o.Num*f.Den
}

// String renders the ratio, e.g. "30000/1001".
func (f FPS) String() string {
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}

// CadenceAdvances reports whether tick T is an "advance" tick when
// resampling a source at srcFPS to an output cadence of outFPS: the tick
// classifies as advance iff
//
//	floor((T+1)*src.Num*out.Den / (out.Num*src.Den)) > floor(T*src.Num*out.Den / (out.Num*src.Den))
//
// If true, the tick loop must pop a new frame from the source buffer; if
// false, it must repeat the last good frame.
func CadenceAdvances(t int64, src, out FPS) bool {
	num := src.Num * out.Den
	den := out.Num * src.Den
	return (t+1)*num/den > t*num/den
}
