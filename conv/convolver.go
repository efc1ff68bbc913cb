// Package conv implements the uniformly partitioned overlap-save FFT
// convolver: per-source-channel convolution against a time-varying stereo
// filter, with crossfaded filter switching and an optional split early/late
// composition (spec §4.1).
package conv

import (
	"errors"
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/meko-binsim/binsimd/filter"
)

// Mode selects whether the convolver's input window is mono (one window
// feeding both ear FDLs — the common per-source-channel case in the audio
// pipeline) or stereo (independent left/right input windows).
type Mode int

const (
	Mono Mode = iota
	Stereo
)

// Config sizes a Convolver. BlockSize is B; EarlyBlocks is E; LateBlocks is
// Lℓ (0 disables split composition, so N = EarlyBlocks).
type Config struct {
	BlockSize   int
	EarlyBlocks int
	LateBlocks  int
	Mode        Mode
}

// ErrFilterBlockMismatch is returned by SetEarlyIR/SetLateIR when the
// supplied filter's block count doesn't exactly match the slot it is meant
// to fill — a programmer/configuration error detected only at setup time,
// never during steady-state Process (spec §4.1 "Failure semantics").
var ErrFilterBlockMismatch = errors.New("conv: filter block count does not match required count")

// Convolver holds one source channel's convolution state: FDL, current and
// previous composite filters, late-filter staging, and the fade windows
// used for crossfading (spec §3).
type Convolver struct {
	blockSize   int
	earlyBlocks int
	lateBlocks  int
	totalBlocks int
	mode        Mode

	windowL, windowR []float32 // length 2B sliding input windows

	fdlL, fdlR [][]complex64 // [N][B+1], row 0 is newest

	tfL, tfR         [][]complex64 // [N][B+1] current composite filter
	tfLPrev, tfRPrev [][]complex64 // [N][B+1] previous composite, for crossfade

	stagedEarlyL, stagedEarlyR [][]complex64 // [E][B+1] pending early filter
	stagedLateL, stagedLateR   [][]complex64 // [Lℓ][B+1] pending late filter

	pendingRebuild   bool
	pendingCrossfade bool
	processCounter   uint64

	fadeIn, fadeOut []float32 // length B

	plan *algofft.PlanRealT[float32, complex64]

	// Scratch buffers, all preallocated so Process never allocates.
	resultL, resultR         []complex64 // B+1
	resultLPrev, resultRPrev []complex64 // B+1
	timeL, timeR             []float32   // 2B
	timeLPrev, timeRPrev     []float32   // 2B
}

// New constructs a Convolver per cfg. All internal buffers are preallocated;
// Process never allocates afterward.
func New(cfg Config) (*Convolver, error) {
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("conv: block size must be positive, got %d", cfg.BlockSize)
	}
	if cfg.EarlyBlocks <= 0 {
		return nil, fmt.Errorf("conv: early blocks must be positive, got %d", cfg.EarlyBlocks)
	}
	if cfg.LateBlocks < 0 {
		return nil, fmt.Errorf("conv: late blocks must be non-negative, got %d", cfg.LateBlocks)
	}

	b := cfg.BlockSize
	n := cfg.EarlyBlocks + cfg.LateBlocks
	bins := b + 1

	plan, err := algofft.NewPlanReal32(2 * b)
	if err != nil {
		return nil, fmt.Errorf("conv: creating FFT plan: %w", err)
	}

	fadeIn, fadeOut := filter.FadeWindows(b)

	c := &Convolver{
		blockSize:   b,
		earlyBlocks: cfg.EarlyBlocks,
		lateBlocks:  cfg.LateBlocks,
		totalBlocks: n,
		mode:        cfg.Mode,

		windowL: make([]float32, 2*b),
		windowR: make([]float32, 2*b),

		fdlL: makeComplexRows(n, bins),
		fdlR: makeComplexRows(n, bins),

		tfL:     makeComplexRows(n, bins),
		tfR:     makeComplexRows(n, bins),
		tfLPrev: makeComplexRows(n, bins),
		tfRPrev: makeComplexRows(n, bins),

		stagedEarlyL: makeComplexRows(cfg.EarlyBlocks, bins),
		stagedEarlyR: makeComplexRows(cfg.EarlyBlocks, bins),

		fadeIn:  fadeIn,
		fadeOut: fadeOut,

		plan: plan,

		resultL:     make([]complex64, bins),
		resultR:     make([]complex64, bins),
		resultLPrev: make([]complex64, bins),
		resultRPrev: make([]complex64, bins),
		timeL:       make([]float32, 2*b),
		timeR:       make([]float32, 2*b),
		timeLPrev:   make([]float32, 2*b),
		timeRPrev:   make([]float32, 2*b),
	}

	if cfg.LateBlocks > 0 {
		c.stagedLateL = makeComplexRows(cfg.LateBlocks, bins)
		c.stagedLateR = makeComplexRows(cfg.LateBlocks, bins)
	}

	return c, nil
}

func makeComplexRows(n, bins int) [][]complex64 {
	rows := make([][]complex64, n)
	for i := range rows {
		rows[i] = make([]complex64, bins)
	}
	return rows
}

// BlockSize returns B.
func (c *Convolver) BlockSize() int { return c.blockSize }

// Latency returns the processing latency in samples: one block, the
// standard overlap-save cold-start cost.
func (c *Convolver) Latency() int { return c.blockSize }

// SetEarlyIR stages f as the new early filter. Per spec §4.1.2: the
// previous composite filter is snapshotted for crossfading, the new
// filter's first EarlyBlocks FD blocks are staged, and a rebuild is
// requested for the next Process call.
func (c *Convolver) SetEarlyIR(f *filter.Filter, crossfade bool) error {
	if f.Blocks() != c.earlyBlocks {
		return fmt.Errorf("%w: early filter has %d blocks, need %d", ErrFilterBlockMismatch, f.Blocks(), c.earlyBlocks)
	}

	for i := range c.totalBlocks {
		copy(c.tfLPrev[i], c.tfL[i])
		copy(c.tfRPrev[i], c.tfR[i])
	}

	for i := range c.earlyBlocks {
		copy(c.stagedEarlyL[i], f.TFLeft[i])
		copy(c.stagedEarlyR[i], f.TFRight[i])
	}

	c.pendingRebuild = true
	c.pendingCrossfade = crossfade
	return nil
}

// SetLateIR stages f as the new late-reverb filter. Crossfade on late change
// is intentionally not offered (spec §4.1.2 default: no crossfade — the
// late filter's own fade-in window provides the transition).
func (c *Convolver) SetLateIR(f *filter.Filter) error {
	if c.lateBlocks == 0 {
		return fmt.Errorf("conv: split composition is not enabled on this convolver")
	}
	if f.Blocks() != c.lateBlocks {
		return fmt.Errorf("%w: late filter has %d blocks, need %d", ErrFilterBlockMismatch, f.Blocks(), c.lateBlocks)
	}

	for i := range c.lateBlocks {
		copy(c.stagedLateL[i], f.TFLeft[i])
		copy(c.stagedLateR[i], f.TFRight[i])
	}

	c.pendingRebuild = true
	return nil
}

// rebuild merges staged early/late filters into the composite TF, per the
// one-block-overlap rule of spec §4.1.1.
func (c *Convolver) rebuild() {
	if !c.pendingRebuild {
		return
	}

	for i := range c.earlyBlocks {
		copy(c.tfL[i], c.stagedEarlyL[i])
		copy(c.tfR[i], c.stagedEarlyR[i])
	}

	if c.lateBlocks > 0 {
		e := c.earlyBlocks
		addComplex(c.tfL[e-1], c.stagedLateL[0])
		addComplex(c.tfR[e-1], c.stagedLateR[0])

		for i := 1; i < c.lateBlocks; i++ {
			copy(c.tfL[e+i-1], c.stagedLateL[i])
			copy(c.tfR[e+i-1], c.stagedLateR[i])
		}
	}

	c.pendingRebuild = false
}

func addComplex(dst, src []complex64) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Process convolves one mono B-sample block against the composite filter,
// writing the B-sample stereo result into outLeft/outRight. Mono mode only;
// the same input window feeds both FDL_L and FDL_R (spec §4.1 step 1). It
// never allocates and never returns an error in steady state; wrong-size
// buffers are a programmer error (spec §4.1 "Failure semantics").
func (c *Convolver) Process(block, outLeft, outRight []float32) error {
	if c.mode != Mono {
		return fmt.Errorf("conv: Process called on a %v-mode convolver, want Mono", c.mode)
	}
	if len(block) != c.blockSize {
		return fmt.Errorf("conv: block has %d samples, want %d", len(block), c.blockSize)
	}
	if len(outLeft) != c.blockSize || len(outRight) != c.blockSize {
		return fmt.Errorf("conv: output buffers must have length %d", c.blockSize)
	}

	if err := c.ingest(block, nil, true); err != nil {
		return err
	}

	c.rebuild()
	c.spectralSum()
	return c.finish(outLeft, outRight)
}

// ProcessStereo convolves independent left/right B-sample input windows
// against the composite filter (spec §4.1: "In stereo mode, maintain two
// independent windows").
func (c *Convolver) ProcessStereo(blockLeft, blockRight, outLeft, outRight []float32) error {
	if c.mode != Stereo {
		return fmt.Errorf("conv: ProcessStereo called on a %v-mode convolver, want Stereo", c.mode)
	}
	if len(blockLeft) != c.blockSize || len(blockRight) != c.blockSize {
		return fmt.Errorf("conv: block has wrong length, want %d", c.blockSize)
	}
	if len(outLeft) != c.blockSize || len(outRight) != c.blockSize {
		return fmt.Errorf("conv: output buffers must have length %d", c.blockSize)
	}

	if err := c.ingest(blockLeft, blockRight, false); err != nil {
		return err
	}

	c.rebuild()
	c.spectralSum()
	return c.finish(outLeft, outRight)
}

// ingest slides the input window(s) left by B and writes the new block into
// the upper half, then pushes the window's spectrum into the FDL (spec §4.1
// steps 1-2). Because the window starts all-zero, the shift-then-insert
// operation reproduces the spec's separately stated first-call case without
// a branch.
func (c *Convolver) ingest(blockLeft, blockRight []float32, mono bool) error {
	b := c.blockSize

	shiftAndInsert := func(window, block []float32) {
		copy(window[:b], window[b:])
		copy(window[b:], block)
	}
	shiftAndInsert(c.windowL, blockLeft)

	rotateRow := func(fdl [][]complex64) []complex64 {
		last := fdl[len(fdl)-1]
		copy(fdl[1:], fdl[:len(fdl)-1])
		fdl[0] = last
		return last
	}

	if mono {
		row := rotateRow(c.fdlL)
		if err := c.plan.Forward(row, c.windowL); err != nil {
			return fmt.Errorf("conv: forward FFT: %w", err)
		}
		rowR := rotateRow(c.fdlR)
		copy(rowR, row)
		return nil
	}

	shiftAndInsert(c.windowR, blockRight)

	rowL := rotateRow(c.fdlL)
	if err := c.plan.Forward(rowL, c.windowL); err != nil {
		return fmt.Errorf("conv: forward FFT left: %w", err)
	}
	rowR := rotateRow(c.fdlR)
	if err := c.plan.Forward(rowR, c.windowR); err != nil {
		return fmt.Errorf("conv: forward FFT right: %w", err)
	}
	return nil
}

// spectralSum computes the per-bin sum over all N partition blocks (spec
// §4.1 step 4), and the same sum against the previous filter if a crossfade
// is pending.
func (c *Convolver) spectralSum() {
	clearComplex(c.resultL)
	clearComplex(c.resultR)

	for i := range c.totalBlocks {
		mulAddComplex(c.resultL, c.tfL[i], c.fdlL[i])
		mulAddComplex(c.resultR, c.tfR[i], c.fdlR[i])
	}

	if c.pendingCrossfade {
		clearComplex(c.resultLPrev)
		clearComplex(c.resultRPrev)
		for i := range c.totalBlocks {
			mulAddComplex(c.resultLPrev, c.tfLPrev[i], c.fdlL[i])
			mulAddComplex(c.resultRPrev, c.tfRPrev[i], c.fdlR[i])
		}
	}
}

// finish inverse-transforms the spectral sums, discards the aliased first
// half (spec §4.1 step 5), applies the crossfade if pending (step 6), and
// advances the process counter (step 7).
func (c *Convolver) finish(outLeft, outRight []float32) error {
	b := c.blockSize

	if err := c.plan.Inverse(c.timeL, c.resultL); err != nil {
		return fmt.Errorf("conv: inverse FFT left: %w", err)
	}
	if err := c.plan.Inverse(c.timeR, c.resultR); err != nil {
		return fmt.Errorf("conv: inverse FFT right: %w", err)
	}

	if c.pendingCrossfade {
		if err := c.plan.Inverse(c.timeLPrev, c.resultLPrev); err != nil {
			return fmt.Errorf("conv: inverse FFT left (previous filter): %w", err)
		}
		if err := c.plan.Inverse(c.timeRPrev, c.resultRPrev); err != nil {
			return fmt.Errorf("conv: inverse FFT right (previous filter): %w", err)
		}

		newL, newR := c.timeL[b:], c.timeR[b:]
		oldL, oldR := c.timeLPrev[b:], c.timeRPrev[b:]

		for n := range b {
			outLeft[n] = newL[n]*c.fadeIn[n] + oldL[n]*c.fadeOut[n]
			outRight[n] = newR[n]*c.fadeIn[n] + oldR[n]*c.fadeOut[n]
		}
		c.pendingCrossfade = false
	} else {
		copy(outLeft, c.timeL[b:])
		copy(outRight, c.timeR[b:])
	}

	c.processCounter++
	return nil
}

// Reset clears all buffers and counters, returning the convolver to its
// freshly constructed state.
func (c *Convolver) Reset() {
	for i := range c.windowL {
		c.windowL[i] = 0
		c.windowR[i] = 0
	}
	zeroRows(c.fdlL)
	zeroRows(c.fdlR)
	zeroRows(c.tfL)
	zeroRows(c.tfR)
	zeroRows(c.tfLPrev)
	zeroRows(c.tfRPrev)
	zeroRows(c.stagedEarlyL)
	zeroRows(c.stagedEarlyR)
	zeroRows(c.stagedLateL)
	zeroRows(c.stagedLateR)
	c.pendingRebuild = false
	c.pendingCrossfade = false
	c.processCounter = 0
}

func zeroRows(rows [][]complex64) {
	for _, row := range rows {
		clearComplex(row)
	}
}

func clearComplex(s []complex64) {
	for i := range s {
		s[i] = 0
	}
}

func mulAddComplex(dst, a, b []complex64) {
	for i := range dst {
		dst[i] += a[i] * b[i]
	}
}
