// ABOUTME: Streaming linear resampler for mono int16 audio
// ABOUTME: Carries one sample across chunks so boundaries interpolate cleanly
package resample

// Resampler performs linear interpolation to convert between sample rates.
// Output lags input by one sample: position 0 sits on the last sample of
// the previous chunk (silence before the first chunk).
type Resampler struct {
	inputRate  int
	outputRate int
	ratio      float64
	position   float64
	lastSample int16
}

// New creates a new resampler
func New(inputRate, outputRate int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// Resample appends input converted to the output rate onto out
func (r *Resampler) Resample(input []int16, out []int16) []int16 {
	frames := len(input)
	if frames == 0 {
		return out
	}

	for {
		idx := int(r.position)
		if idx >= frames {
			break
		}
		frac := r.position - float64(idx)

		a := r.lastSample
		if idx > 0 {
			a = input[idx-1]
		}
		b := input[idx]
		out = append(out, int16(float64(a)*(1.0-frac)+float64(b)*frac))

		r.position += r.ratio
	}

	r.lastSample = input[frames-1]
	r.position -= float64(frames)
	return out
}

// InputFrames returns how many input samples produce roughly n output samples
func (r *Resampler) InputFrames(n int) int {
	frames := int(float64(n)*r.ratio + 0.5)
	if frames < 1 {
		frames = 1
	}
	return frames
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
	r.lastSample = 0
}
