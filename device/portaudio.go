package device

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice drives the default output device via PortAudio
// (grounded on the go-to-PipeWire/PortAudio binding shape in the
// examples' other audio-engine callers, e.g. Processor.Start's
// portaudio.OpenDefaultStream(in, out, rate, blockSize, callback)).
type PortAudioDevice struct {
	sampleRate float64
	blockSize  int

	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewPortAudioDevice initializes PortAudio and describes (without yet
// opening) an output-only stream at sampleRate/blockSize.
func NewPortAudioDevice(sampleRate float64, blockSize int) (*PortAudioDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("device: portaudio.Initialize: %w", err)
	}
	return &PortAudioDevice{sampleRate: sampleRate, blockSize: blockSize}, nil
}

// Start opens a stereo-output-only default stream and begins calling back
// into callback once per block (spec §4.7).
func (d *PortAudioDevice) Start(callback func(out [][]float32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream != nil {
		return fmt.Errorf("device: already started")
	}

	stream, err := portaudio.OpenDefaultStream(0, 2, d.sampleRate, d.blockSize, func(out [][]float32) {
		callback(out)
	})
	if err != nil {
		return fmt.Errorf("device: opening default stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		return fmt.Errorf("device: starting stream: %w", err)
	}
	d.stream = stream
	return nil
}

// Stop closes the stream and releases PortAudio's global state.
func (d *PortAudioDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		return nil
	}
	if err := d.stream.Stop(); err != nil {
		return fmt.Errorf("device: stopping stream: %w", err)
	}
	if err := d.stream.Close(); err != nil {
		return fmt.Errorf("device: closing stream: %w", err)
	}
	d.stream = nil
	return portaudio.Terminate()
}

func (d *PortAudioDevice) SampleRate() float64 { return d.sampleRate }
func (d *PortAudioDevice) BlockSize() int      { return d.blockSize }
