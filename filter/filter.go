// Package filter implements the filter entity (a preprocessed BRIR/HRTF
// pair) and the filter store that preloads and serves them by pose key.
package filter

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// Class identifies which fade treatment and expected length a filter
// asset belongs to: an early/short filter fades out on its last block, a
// late-reverb filter fades in on its first block, and a headphone filter
// gets no fade at all (spec §4.2).
type Class int

const (
	ClassEarly Class = iota
	ClassLate
	ClassHeadphone
)

// Filter holds one BRIR/HRTF pair in frequency-domain blocked form: each ear
// is a (blocks, B+1) matrix of complex bins, one row per time-domain block of
// size B, zero-padded to 2B before the forward real FFT (spec §3). Filters
// are immutable once constructed.
type Filter struct {
	BlockSize int
	TFLeft    [][]complex64 // [block][bin]
	TFRight   [][]complex64
}

// Blocks returns the number of partition blocks N in the filter.
func (f *Filter) Blocks() int {
	return len(f.TFLeft)
}

// FadeWindows returns the cosine-squared fade-in and fade-out windows of
// length blockSize, matching pyBinSim's crossFadeIn/crossFadeOut exactly:
// fadeOut[n] = cos²((n/(B-1))·π/2) decreases 1→0, fadeIn is its reverse.
func FadeWindows(blockSize int) (fadeIn, fadeOut []float32) {
	fadeOut = make([]float32, blockSize)
	fadeIn = make([]float32, blockSize)

	denom := float64(blockSize - 1)
	if denom <= 0 {
		denom = 1
	}

	for n := range blockSize {
		c := math.Cos(float64(n) / denom * (math.Pi / 2))
		fadeOut[n] = float32(c * c)
	}
	for n := range blockSize {
		fadeIn[n] = fadeOut[blockSize-1-n]
	}
	return fadeIn, fadeOut
}

// NewFromBlocks builds a Filter from time-domain (blocks, B) matrices for
// both ears, applying the class's fade window and forward-FFTing each block
// zero-padded to 2B. leftTD and rightTD must have the same shape.
func NewFromBlocks(leftTD, rightTD [][]float32, blockSize int, class Class) (*Filter, error) {
	if len(leftTD) != len(rightTD) {
		return nil, fmt.Errorf("filter: left has %d blocks, right has %d", len(leftTD), len(rightTD))
	}
	n := len(leftTD)
	if n == 0 {
		return nil, fmt.Errorf("filter: zero blocks")
	}

	fadeIn, fadeOut := FadeWindows(blockSize)

	applyFade := func(td [][]float32) {
		switch class {
		case ClassEarly:
			last := td[n-1]
			for i := range last {
				last[i] *= fadeOut[i]
			}
		case ClassLate:
			first := td[0]
			for i := range first {
				first[i] *= fadeIn[i]
			}
		case ClassHeadphone:
			// no fade
		}
	}
	applyFade(leftTD)
	applyFade(rightTD)

	plan, err := algofft.NewPlanReal32(2 * blockSize)
	if err != nil {
		return nil, fmt.Errorf("filter: creating FFT plan: %w", err)
	}

	tfLeft := make([][]complex64, n)
	tfRight := make([][]complex64, n)
	window := make([]float32, 2*blockSize)

	transform := func(td []float32) ([]complex64, error) {
		for i := range window {
			window[i] = 0
		}
		copy(window[:blockSize], td)
		dst := make([]complex64, blockSize+1)
		if err := plan.Forward(dst, window); err != nil {
			return nil, err
		}
		return dst, nil
	}

	for i := range n {
		tfLeft[i], err = transform(leftTD[i])
		if err != nil {
			return nil, fmt.Errorf("filter: forward FFT left block %d: %w", i, err)
		}
		tfRight[i], err = transform(rightTD[i])
		if err != nil {
			return nil, fmt.Errorf("filter: forward FFT right block %d: %w", i, err)
		}
	}

	return &Filter{BlockSize: blockSize, TFLeft: tfLeft, TFRight: tfRight}, nil
}

// ZeroFilter returns an all-zero filter with n blocks of blockSize, used as
// the filter store's default substitute for an unresolved pose key.
func ZeroFilter(blockSize, n int) *Filter {
	tfLeft := make([][]complex64, n)
	tfRight := make([][]complex64, n)
	for i := range n {
		tfLeft[i] = make([]complex64, blockSize+1)
		tfRight[i] = make([]complex64, blockSize+1)
	}
	return &Filter{BlockSize: blockSize, TFLeft: tfLeft, TFRight: tfRight}
}

// reshapeToBlocks zero-pads samples on the right to a multiple of blockSize
// and reshapes into a (blocks, blockSize) matrix. It never truncates;
// conforming to a configured length (and warning on truncation) is the
// caller's responsibility.
func reshapeToBlocks(samples []float32, blockSize int) [][]float32 {
	n := len(samples) / blockSize
	if len(samples)%blockSize != 0 {
		n++
	}
	out := make([][]float32, n)
	for i := range n {
		row := make([]float32, blockSize)
		start := i * blockSize
		end := min(start+blockSize, len(samples))
		if start < len(samples) {
			copy(row, samples[start:end])
		}
		out[i] = row
	}
	return out
}
