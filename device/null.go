package device

import (
	"fmt"
	"sync"
	"time"
)

// NullDevice drives callback on a wall-clock ticker instead of a real
// sound card, for headless runs and integration tests (spec §8 scenario
// harness needs a device that doesn't require actual hardware).
type NullDevice struct {
	sampleRate float64
	blockSize  int

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// NewNullDevice builds a NullDevice at the given sample rate/block size.
func NewNullDevice(sampleRate float64, blockSize int) *NullDevice {
	return &NullDevice{sampleRate: sampleRate, blockSize: blockSize}
}

// Start runs callback once per block period on a background goroutine
// until Stop is called.
func (d *NullDevice) Start(callback func(out [][]float32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != nil {
		return fmt.Errorf("device: already started")
	}
	d.stop = make(chan struct{})
	d.stopped = make(chan struct{})

	period := time.Duration(float64(d.blockSize) / d.sampleRate * float64(time.Second))
	if period <= 0 {
		period = time.Millisecond
	}

	go func() {
		defer close(d.stopped)
		out := [][]float32{make([]float32, d.blockSize), make([]float32, d.blockSize)}
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				callback(out)
			}
		}
	}()
	return nil
}

// Stop signals the background goroutine and waits for it to exit.
func (d *NullDevice) Stop() error {
	d.mu.Lock()
	stop, stopped := d.stop, d.stopped
	d.stop, d.stopped = nil, nil
	d.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-stopped
	return nil
}

func (d *NullDevice) SampleRate() float64 { return d.sampleRate }
func (d *NullDevice) BlockSize() int      { return d.blockSize }
