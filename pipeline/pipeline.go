// Package pipeline implements the per-block audio callback (C7): the
// real-time thread that pulls a block from the sound source, convolves
// each active channel against its pose-selected filter, mixes, optionally
// applies headphone compensation, and writes the result to the device
// (spec §4.5).
package pipeline

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/meko-binsim/binsimd/conv"
	"github.com/meko-binsim/binsimd/control"
	"github.com/meko-binsim/binsimd/filter"
	"github.com/meko-binsim/binsimd/internal/ratelog"
	"github.com/meko-binsim/binsimd/source"
)

// Config carries the sizing and feature flags the pipeline needs (spec §6).
type Config struct {
	BlockSize           int
	MaxChannels         int
	FilterSize          int
	LateReverbSize      int
	HeadphoneFilterSize int
	EnableCrossfading   bool
	UseSplitFilters     bool
	UseHeadphoneFilter  bool
	LoudnessFactor      float32
}

// Pipeline owns every per-block buffer and convolver; Process never
// allocates (spec §4.5 "non-blocking contract").
type Pipeline struct {
	cfg Config

	store *filter.Store
	src   *source.Source
	state *control.State

	convolvers []*conv.Convolver
	headphone  *conv.Convolver // nil if disabled

	chanOutL, chanOutR []float32 // B, reused across channels within a block
	mixL, mixR         []float32 // B
	hpOutL, hpOutR     []float32 // B, only used if headphone enabled

	warn         *ratelog.Limiter
	lastClipWarn time.Time
	lastPeak     atomic.Uint32 // float32 bits, read by webui/tui without locking the audio thread
}

// LastPeak reports the peak absolute sample value written in the most
// recent block, for monitoring surfaces (webui, tui) that must not touch
// any audio-thread state directly.
func (p *Pipeline) LastPeak() float32 {
	return math.Float32frombits(p.lastPeak.Load())
}

// New builds a Pipeline. store and src must already be loaded/running.
func New(cfg Config, store *filter.Store, src *source.Source, state *control.State) (*Pipeline, error) {
	p := &Pipeline{
		cfg:      cfg,
		store:    store,
		src:      src,
		state:    state,
		chanOutL: make([]float32, cfg.BlockSize),
		chanOutR: make([]float32, cfg.BlockSize),
		mixL:     make([]float32, cfg.BlockSize),
		mixR:     make([]float32, cfg.BlockSize),
		warn:     ratelog.NewLimiter(),
	}

	earlyBlocks := blockCount(cfg.FilterSize, cfg.BlockSize)
	lateBlocks := 0
	if cfg.UseSplitFilters {
		lateBlocks = blockCount(cfg.LateReverbSize, cfg.BlockSize)
	}

	p.convolvers = make([]*conv.Convolver, cfg.MaxChannels)
	for c := range p.convolvers {
		cv, err := conv.New(conv.Config{
			BlockSize:   cfg.BlockSize,
			EarlyBlocks: earlyBlocks,
			LateBlocks:  lateBlocks,
			Mode:        conv.Mono,
		})
		if err != nil {
			return nil, fmt.Errorf("pipeline: building convolver %d: %w", c, err)
		}
		// Load the filters for the channel's current pose keys up front, so
		// audio is convolved before the first pose-key message arrives.
		if err := cv.SetEarlyIR(store.GetEarly(state.EarlyKey(c)), false); err != nil {
			return nil, fmt.Errorf("pipeline: setting initial early filter for channel %d: %w", c, err)
		}
		if cfg.UseSplitFilters {
			if err := cv.SetLateIR(store.GetLate(state.LateKey(c))); err != nil {
				return nil, fmt.Errorf("pipeline: setting initial late filter for channel %d: %w", c, err)
			}
		}
		p.convolvers[c] = cv
	}

	if cfg.UseHeadphoneFilter {
		hpBlocks := blockCount(cfg.HeadphoneFilterSize, cfg.BlockSize)
		hp, err := conv.New(conv.Config{
			BlockSize:   cfg.BlockSize,
			EarlyBlocks: hpBlocks,
			Mode:        conv.Stereo,
		})
		if err != nil {
			return nil, fmt.Errorf("pipeline: building headphone convolver: %w", err)
		}
		hpFilter := store.GetHeadphone()
		if hpFilter == nil {
			return nil, fmt.Errorf("pipeline: useHeadphoneFilter is set but no headphone filter was loaded")
		}
		if err := hp.SetEarlyIR(hpFilter, false); err != nil {
			return nil, fmt.Errorf("pipeline: setting headphone filter: %w", err)
		}
		p.headphone = hp
		p.hpOutL = make([]float32, cfg.BlockSize)
		p.hpOutR = make([]float32, cfg.BlockSize)
	}

	return p, nil
}

func blockCount(irSamples, blockSize int) int {
	n := irSamples / blockSize
	if n == 0 {
		n = 1
	}
	return n
}

// Process runs one full callback iteration, writing the result into
// out[0] (left) and out[1] (right), each of length BlockSize (spec §4.5).
func (p *Pipeline) Process(out [][]float32) {
	if list := p.state.TakeFileList(); list != "" {
		p.src.RequestFileList(list)
	}

	activeChannels, block := p.src.BufferRead()

	clearF32(p.mixL)
	clearF32(p.mixR)

	if p.state.PauseConvolution() {
		p.sumInputOnly(activeChannels, block)
	} else {
		p.convolveChannels(activeChannels, block)
	}

	finalL, finalR := p.mixL, p.mixR
	if p.headphone != nil {
		if err := p.headphone.ProcessStereo(p.mixL, p.mixR, p.hpOutL, p.hpOutR); err != nil {
			slog.Warn("pipeline: headphone convolver error, bypassing", "err", err)
		} else {
			finalL, finalR = p.hpOutL, p.hpOutR
		}
	}

	p.normalizeAndWrite(activeChannels, finalL, finalR, out)

	if p.state.PausePlayback() {
		clearF32(out[0])
		clearF32(out[1])
	}
}

// convolveChannels runs step 3 of spec §4.5: for each active channel,
// apply any pending filter change and convolve, summing into mixL/mixR.
func (p *Pipeline) convolveChannels(activeChannels int, block [][]float32) {
	for c := range activeChannels {
		if key, dirty := p.state.FetchEarlyDirty(c); dirty {
			f := p.store.GetEarly(key)
			if err := p.convolvers[c].SetEarlyIR(f, p.cfg.EnableCrossfading); err != nil {
				slog.Warn("pipeline: failed to set early filter", "channel", c, "err", err)
			}
		}
		if p.cfg.UseSplitFilters {
			if key, dirty := p.state.FetchLateDirty(c); dirty {
				f := p.store.GetLate(key)
				if err := p.convolvers[c].SetLateIR(f); err != nil {
					slog.Warn("pipeline: failed to set late filter", "channel", c, "err", err)
				}
			}
		}

		if err := p.convolvers[c].Process(block[c], p.chanOutL, p.chanOutR); err != nil {
			p.warn.Once(fmt.Sprintf("convolve-error:%d", c), func() {
				slog.Warn("pipeline: convolver error, channel silenced", "channel", c, "err", err)
			})
			clearF32(p.chanOutL)
			clearF32(p.chanOutR)
		}

		addF32(p.mixL, p.chanOutL)
		addF32(p.mixR, p.chanOutR)
	}
}

// sumInputOnly implements the pause_convolution bypass: the raw input sum
// feeds straight through to both ears (spec §4.5 step 8).
func (p *Pipeline) sumInputOnly(activeChannels int, block [][]float32) {
	for c := range activeChannels {
		addF32(p.mixL, block[c])
		addF32(p.mixR, block[c])
	}
}

// normalizeAndWrite applies the fixed headroom policy, checks for clipping,
// and writes the final samples to out (spec §4.5 steps 6-7).
func (p *Pipeline) normalizeAndWrite(activeChannels int, finalL, finalR []float32, out [][]float32) {
	divisor := float32(max(activeChannels, 1) * 2)
	gain := p.cfg.LoudnessFactor / divisor

	var peak float32
	for i := range p.cfg.BlockSize {
		l := finalL[i] * gain
		r := finalR[i] * gain
		out[0][i] = l
		out[1][i] = r
		if a := abs32(l); a > peak {
			peak = a
		}
		if a := abs32(r); a > peak {
			peak = a
		}
	}

	p.lastPeak.Store(math.Float32bits(peak))

	if peak > 1 && time.Since(p.lastClipWarn) > time.Second {
		slog.Warn("pipeline: clipping occurred, consider lowering loudnessFactor", "peak", peak)
		p.lastClipWarn = time.Now()
	}
}

func clearF32(s []float32) {
	for i := range s {
		s[i] = 0
	}
}

func addF32(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
