package media

import "math"

// GainLinear converts a decibel adjustment to a linear multiplier:
// 10^(dB/20).
func GainLinear(dB float64) float64 {
	return math.Pow(10, dB/20)
}

// ApplyGainS16 scales every S16LE sample in pcm in place by the linear
// gain corresponding to dB, clamping to the int16 range so no sample
// wraps around. Callers must not invoke this when dB == 0 — the caller
// is responsible for skipping the call entirely in that case, matching
// the source engine's guard-at-the-call-site convention; this function
// does not special-case zero gain itself.
func ApplyGainS16(pcm []byte, dB float64) {
	gain := GainLinear(dB)
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		scaled := float64(sample) * gain
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		out := int16(scaled)
		pcm[i] = byte(uint16(out))
		pcm[i+1] = byte(uint16(out) >> 8)
	}
}

// FadeAlphaQ16 computes the linear fade-in/out alpha in Q16 fixed point
// (0 = fully attenuated, 1<<16 = no attenuation) for a frame at
// contentTimeMs within a fade window of durationMs starting at windowStartMs.
// For fade-in, alpha rises from 0 at windowStartMs to 1<<16 at
// windowStartMs+durationMs. The first frame of a fade-in (contentTimeMs ==
// windowStartMs) therefore always evaluates to alpha == 0, satisfying the
// seam-priming obligation.
func FadeAlphaQ16(contentTimeMs, windowStartMs, durationMs int64, fadeIn bool) int32 {
	if durationMs <= 0 {
		return 1 << 16
	}
	elapsed := contentTimeMs - windowStartMs
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > durationMs {
		elapsed = durationMs
	}
	progress := int32(elapsed * (1 << 16) / durationMs)
	if fadeIn {
		return progress
	}
	return (1 << 16) - progress
}

// ApplyAlphaY attenuates a luma plane toward broadcast black by alphaQ16
// (0 = fully black, 1<<16 = unchanged). Chroma planes are not touched
// here; ApplyAlphaChroma moves them toward the neutral midpoint by the
// same alpha, so a frame fully attenuated by both is uniform broadcast
// black, matching the pad template's appearance.
func ApplyAlphaY(y []byte, alphaQ16 int32) {
	if alphaQ16 >= 1<<16 {
		return
	}
	for i, v := range y {
		delta := int32(v) - int32(broadcastBlackY)
		y[i] = byte(int32(broadcastBlackY) + (delta*alphaQ16)>>16)
	}
}

// ApplyAlphaChroma attenuates chroma planes toward the neutral midpoint
// by alphaQ16, the chroma counterpart of ApplyAlphaY.
func ApplyAlphaChroma(c []byte, alphaQ16 int32) {
	if alphaQ16 >= 1<<16 {
		return
	}
	for i, v := range c {
		delta := int32(v) - int32(neutralChroma)
		c[i] = byte(int32(neutralChroma) + (delta*alphaQ16)>>16)
	}
}
