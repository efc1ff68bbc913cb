// Package device implements the audio output boundary (spec §4.7): a
// small interface wrapping whatever actually drives the sound card, plus
// a PortAudio-backed implementation and a no-op stand-in for tests and
// headless runs.
package device

// Device is the boundary between the pipeline and an actual audio output.
// The callback receives out[0] (left) and out[1] (right), each exactly
// BlockSize samples, and must fill them before returning; it is invoked
// on the platform's real-time audio thread, so it must not block or
// allocate (spec §4.7, §5 T_audio).
type Device interface {
	Start(callback func(out [][]float32)) error
	Stop() error
	SampleRate() float64
	BlockSize() int
}
