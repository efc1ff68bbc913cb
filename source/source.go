// Package source implements the double-buffered sound source: background
// file loading handed off to the real-time audio thread without blocking it
// (spec §4.3), grounded on pyBinSim's SoundHandler.
package source

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// errEmptyPlaylist is returned when a file-list request contains no
// non-blank paths.
var errEmptyPlaylist = errors.New("source: empty sound file list")

// Config sizes a Source.
type Config struct {
	BlockSize   int
	MaxChannels int
	SampleRate  int
	Loop        bool
}

// sound is a fully decoded, zero-padded playlist: all listed files decoded
// and concatenated back-to-back, channel count clamped to MaxChannels.
type sound struct {
	data     [][]float32 // [channel][frame], len(frame) a multiple of BlockSize
	channels int
}

// Source is the sound source (C5). Only BufferRead and RequestFileList are
// safe to call from the audio thread; both are wait-free.
type Source struct {
	cfg Config

	buffer         [][]float32 // [MaxChannels][2*B], owned by the audio thread
	outBuf         [][]float32 // [MaxChannels][B], scratch returned to callers
	activeChannels int
	current        *sound
	frameCursor    int
	exhausted      bool

	pendingPath    atomic.Pointer[string]
	stagedSound    atomic.Pointer[sound]
	newSoundLoaded atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Source and starts its background loader goroutine
// (T_loader in spec §5).
func New(cfg Config) *Source {
	s := &Source{
		cfg:    cfg,
		buffer: make2D(cfg.MaxChannels, 2*cfg.BlockSize),
		outBuf: make2D(cfg.MaxChannels, cfg.BlockSize),
		stopCh: make(chan struct{}),
	}
	go s.loaderLoop()
	return s
}

func make2D(rows, cols int) [][]float32 {
	out := make([][]float32, rows)
	for i := range out {
		out[i] = make([]float32, cols)
	}
	return out
}

// RequestFileList overwrites the requested playlist with a "#"-separated
// list of paths (spec §4.3, §6 "soundfile"). Wait-free: it only stores a
// pointer for the loader goroutine to pick up.
func (s *Source) RequestFileList(list string) {
	s.pendingPath.Store(&list)
}

// Close stops the background loader.
func (s *Source) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// loaderLoop is T_loader: it polls for a pending playlist request, decodes
// and concatenates every file in it, and publishes the result for the audio
// thread to pick up at the next BufferRead (spec §4.3, §5).
func (s *Source) loaderLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			raw := s.pendingPath.Swap(nil)
			if raw == nil || *raw == "" {
				continue
			}
			snd, err := s.loadPlaylist(*raw)
			if err != nil {
				slog.Error("source: failed to load sound file list", "list", *raw, "err", err)
				continue
			}
			s.stagedSound.Store(snd)
			s.newSoundLoaded.Store(true)
			slog.Info("source: loaded new sound file list", "list", *raw, "channels", snd.channels)
		}
	}
}

// loadPlaylist decodes and concatenates every path in a "#"-separated list,
// zero-padding the tail to a multiple of BlockSize (spec §4.3).
func (s *Source) loadPlaylist(raw string) (*sound, error) {
	paths := strings.Split(raw, "#")

	var channels int
	var chunks [][][]float32

	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		data, rate, err := decodeMulti(p)
		if err != nil {
			return nil, err
		}
		if rate != s.cfg.SampleRate {
			return nil, fmt.Errorf("source: %s: sample rate %d Hz, want %d Hz", p, rate, s.cfg.SampleRate)
		}
		if channels == 0 {
			channels = len(data)
		} else if len(data) != channels {
			slog.Warn("source: channel count changed mid-playlist, using the first file's count", "path", p, "have", len(data), "want", channels)
		}
		chunks = append(chunks, data)
	}
	if len(chunks) == 0 {
		return nil, errEmptyPlaylist
	}
	if channels > s.cfg.MaxChannels {
		channels = s.cfg.MaxChannels
	}

	total := 0
	for _, chunk := range chunks {
		total += len(chunk[0])
	}
	if rem := total % s.cfg.BlockSize; rem != 0 {
		total += s.cfg.BlockSize - rem
	}

	data := make([][]float32, channels)
	for c := range data {
		data[c] = make([]float32, total)
	}

	offset := 0
	for _, chunk := range chunks {
		frames := len(chunk[0])
		for c := range channels {
			if c < len(chunk) {
				copy(data[c][offset:offset+frames], chunk[c])
			}
		}
		offset += frames
	}

	return &sound{data: data, channels: channels}, nil
}

// BufferRead returns the next (activeChannels, BlockSize) block and advances
// the ring buffer by one block (spec §4.3). Called once per audio callback;
// wait-free and allocation-free.
func (s *Source) BufferRead() (channels int, block [][]float32) {
	if s.newSoundLoaded.Load() {
		s.current = s.stagedSound.Load()
		s.activeChannels = min(s.current.channels, s.cfg.MaxChannels)
		s.frameCursor = 0
		s.exhausted = false
		for c := range s.buffer {
			clearF32(s.buffer[c])
		}
		s.newSoundLoaded.Store(false)
	}

	b := s.cfg.BlockSize
	for c := range s.activeChannels {
		copy(s.outBuf[c], s.buffer[c][:b])
	}

	s.advance()

	return s.activeChannels, s.outBuf[:s.activeChannels]
}

// advance slides the ring buffer left by one block and appends the next
// block of audio, looping or falling silent at end of playlist per §4.3.
func (s *Source) advance() {
	b := s.cfg.BlockSize

	for c := range s.activeChannels {
		copy(s.buffer[c][:b], s.buffer[c][b:])
	}

	if s.current == nil || len(s.current.data) == 0 {
		s.fillSilence()
		return
	}

	total := len(s.current.data[0])
	if s.frameCursor+b > total {
		if !s.cfg.Loop {
			if !s.exhausted {
				s.exhausted = true
				slog.Info("source: playlist finished, holding silence")
			}
			s.fillSilence()
			return
		}
		s.frameCursor = 0
	}

	for c := range s.activeChannels {
		if c < len(s.current.data) {
			copy(s.buffer[c][b:2*b], s.current.data[c][s.frameCursor:s.frameCursor+b])
		}
	}
	s.frameCursor += b
}

func (s *Source) fillSilence() {
	b := s.cfg.BlockSize
	for c := range s.activeChannels {
		clearF32(s.buffer[c][b : 2*b])
	}
}

func clearF32(s []float32) {
	for i := range s {
		s[i] = 0
	}
}
