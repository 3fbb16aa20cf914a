package audio

// Float32ToPCM16 quantizes normalized float32 samples into little-endian
// int16 PCM bytes. Input values are clamped to [-1, 1] before scaling, so a
// capture device that briefly clips cannot wrap around to the opposite
// polarity.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		s := int32(f * 32768)
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// MonoToStereo duplicates each mono sample into a stereo L+R pair.
func MonoToStereo(samples []float32) []float32 {
	out := make([]float32, len(samples)*2)
	for i, s := range samples {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// StereoToMono averages each interleaved L+R pair into a single mono sample.
// A trailing unpaired sample is dropped.
func StereoToMono(samples []float32) []float32 {
	frames := len(samples) / 2
	out := make([]float32, frames)
	for i := range frames {
		out[i] = (samples[i*2] + samples[i*2+1]) / 2
	}
	return out
}
