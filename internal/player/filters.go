package player

import "math"

// VolumeGain scales 16-bit PCM samples by a dB gain, clamping to the
// int16 range on overflow.
type VolumeGain struct {
	GainDB float64
}

// SetGainDB updates the gain applied by subsequent Process calls.
func (v *VolumeGain) SetGainDB(dB float64) {
	v.GainDB = dB
}

// Process scales every sample by 10^(GainDB/20).
func (v *VolumeGain) Process(samples []int16) []int16 {
	if v.GainDB == 0 {
		return samples
	}
	scale := math.Pow(10, v.GainDB/20)
	out := make([]int16, len(samples))
	for i, s := range samples {
		scaled := float64(s) * scale
		out[i] = clampInt16(scaled)
	}
	return out
}

func clampInt16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// FormatConvert resamples interleaved stereo PCM to TargetRate. A
// TargetRate of 0 means "keep the stream's native rate" (spec.md §4.7:
// "targetRate is either the stream rate or a configured rate").
type FormatConvert struct {
	TargetRate int
	sourceRate int
}

// SetSourceRate records the rate of the frame about to be processed;
// the player calls this once per frame before Process, since the Filter
// interface itself carries no per-call rate parameter.
func (f *FormatConvert) SetSourceRate(rate int) {
	f.sourceRate = rate
}

// Process resamples samples from sourceRate to TargetRate using linear
// interpolation per channel. Stereo-interleaved input is assumed, as
// FFmpegDecoder always requests 2-channel output.
func (f *FormatConvert) Process(samples []int16) []int16 {
	const channels = 2
	if f.TargetRate == 0 || f.sourceRate == 0 || f.TargetRate == f.sourceRate || len(samples) < channels {
		return samples
	}
	frames := len(samples) / channels
	outFrames := int(float64(frames) * float64(f.TargetRate) / float64(f.sourceRate))
	if outFrames < 1 {
		outFrames = 1
	}
	out := make([]int16, outFrames*channels)
	ratio := float64(frames-1) / float64(maxInt(outFrames-1, 1))
	for i := 0; i < outFrames; i++ {
		srcPos := float64(i) * ratio
		lo := int(srcPos)
		hi := lo + 1
		if hi >= frames {
			hi = frames - 1
		}
		frac := srcPos - float64(lo)
		for c := 0; c < channels; c++ {
			a := float64(samples[lo*channels+c])
			b := float64(samples[hi*channels+c])
			out[i*channels+c] = int16(a + (b-a)*frac)
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
