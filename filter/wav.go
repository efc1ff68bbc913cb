package filter

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-audio/wav"
)

// decodeWAV reads a WAV file and returns its left/right channels as
// normalized float32 samples plus the file's sample rate. Mono files are
// duplicated to both ears (legitimate for a headphone filter applied
// identically pre-fan-out), with a logged notice.
func decodeWAV(path string) (left, right []float32, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("filter: opening %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, nil, 0, fmt.Errorf("filter: %s is not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("filter: decoding %s: %w", path, err)
	}

	floatBuf := buf.AsFloat32Buffer()
	numChannels := floatBuf.Format.NumChannels
	sampleRate = floatBuf.Format.SampleRate

	switch numChannels {
	case 1:
		slog.Info("filter: mono WAV duplicated to both ears", "path", path)
		left = make([]float32, len(floatBuf.Data))
		right = make([]float32, len(floatBuf.Data))
		for i, v := range floatBuf.Data {
			left[i] = v
			right[i] = v
		}
	case 2:
		frames := len(floatBuf.Data) / 2
		left = make([]float32, frames)
		right = make([]float32, frames)
		for i := range frames {
			left[i] = floatBuf.Data[2*i]
			right[i] = floatBuf.Data[2*i+1]
		}
	default:
		return nil, nil, 0, fmt.Errorf("filter: %s has %d channels, want mono or stereo", path, numChannels)
	}

	return left, right, sampleRate, nil
}
