package source

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// decodeMulti decodes a WAV file into a (channels, frames) matrix of float32
// samples, independent of channel count (unlike filter's fixed stereo
// decoder, a sound file may have anywhere from 1 to maxChannels channels).
func decodeMulti(path string) (data [][]float32, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s is not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding %s: %w", path, err)
	}

	floatBuf := buf.AsFloat32Buffer()
	numChans := floatBuf.Format.NumChannels
	if numChans < 1 {
		return nil, 0, fmt.Errorf("%s has no channels", path)
	}

	frames := len(floatBuf.Data) / numChans
	data = make([][]float32, numChans)
	for c := range data {
		data[c] = make([]float32, frames)
	}
	for i, v := range floatBuf.Data {
		data[i%numChans][i/numChans] = v
	}

	return data, floatBuf.Format.SampleRate, nil
}
