// Package control implements the command receiver (C6): an OSC server that
// publishes pose-key updates and transport flags to the audio thread as
// dirty flags plus current values, with no cross-thread coordination beyond
// atomic reads of small values (spec §4.4, §5).
package control

import (
	"sync/atomic"

	"github.com/meko-binsim/binsimd/pose"
)

// channelState holds one source channel's early and late-reverb pose keys
// and their dirty flags. Writer: T_recv. Reader: T_audio.
type channelState struct {
	earlyKey   atomic.Pointer[pose.Key]
	lateKey    atomic.Pointer[pose.Key]
	earlyDirty atomic.Bool
	lateDirty  atomic.Bool
}

// State is the shared command state of spec §3/§5: per-channel pose keys
// and dirty flags, plus the global pending-playlist and pause flags.
type State struct {
	channels []channelState

	pendingFileList atomic.Pointer[string]
	pausePlayback   atomic.Bool
	pauseConvolution atomic.Bool
}

// NewState allocates command state for maxChannels source channels, every
// pose key starting at the zero key (spec §4.4 default).
func NewState(maxChannels int) *State {
	s := &State{channels: make([]channelState, maxChannels)}
	zero := pose.Key{}
	for i := range s.channels {
		s.channels[i].earlyKey.Store(&zero)
		s.channels[i].lateKey.Store(&zero)
	}
	return s
}

// NumChannels returns the configured channel capacity (MAX_CHANNELS).
func (s *State) NumChannels() int { return len(s.channels) }

// InRange reports whether ch is a valid channel index.
func (s *State) InRange(ch int) bool { return ch >= 0 && ch < len(s.channels) }

// FetchEarlyDirty atomically reads and clears channel ch's early-filter
// dirty flag (spec §4.4: "the audio thread, at block start, reads and
// clears early_dirty[c]"). The second return value is false if the flag
// was already clear.
func (s *State) FetchEarlyDirty(ch int) (pose.Key, bool) {
	if !s.channels[ch].earlyDirty.CompareAndSwap(true, false) {
		return pose.Key{}, false
	}
	return *s.channels[ch].earlyKey.Load(), true
}

// FetchLateDirty is FetchEarlyDirty's late-reverb analogue.
func (s *State) FetchLateDirty(ch int) (pose.Key, bool) {
	if !s.channels[ch].lateDirty.CompareAndSwap(true, false) {
		return pose.Key{}, false
	}
	return *s.channels[ch].lateKey.Load(), true
}

// EarlyKey returns channel ch's current early pose key without consuming
// its dirty flag.
func (s *State) EarlyKey(ch int) pose.Key { return *s.channels[ch].earlyKey.Load() }

// LateKey returns channel ch's current late-reverb pose key without
// consuming its dirty flag.
func (s *State) LateKey(ch int) pose.Key { return *s.channels[ch].lateKey.Load() }

// SetEarlySlice updates indices [start,end) of channel ch's early pose key
// to vals, preserving the other indices. If the resulting key is unchanged
// from the stored one, the dirty flag is left untouched (spec §4.4, §8
// "command idempotence" — grounded on osc_receiver.py's "same filter as
// before" dedup).
func (s *State) SetEarlySlice(ch, start, end int, vals []int) error {
	cur := s.channels[ch].earlyKey.Load()
	next, err := cur.WithSlice(start, end, vals)
	if err != nil {
		return err
	}
	if next == *cur {
		return nil
	}
	s.channels[ch].earlyKey.Store(&next)
	s.channels[ch].earlyDirty.Store(true)
	return nil
}

// SetLateSlice is SetEarlySlice's late-reverb analogue.
func (s *State) SetLateSlice(ch, start, end int, vals []int) error {
	cur := s.channels[ch].lateKey.Load()
	next, err := cur.WithSlice(start, end, vals)
	if err != nil {
		return err
	}
	if next == *cur {
		return nil
	}
	s.channels[ch].lateKey.Store(&next)
	s.channels[ch].lateDirty.Store(true)
	return nil
}

// SetFileList overwrites the pending playlist request (spec §4.4).
func (s *State) SetFileList(list string) { s.pendingFileList.Store(&list) }

// TakeFileList atomically reads and clears the pending playlist request.
func (s *State) TakeFileList() string {
	p := s.pendingFileList.Swap(nil)
	if p == nil {
		return ""
	}
	return *p
}

// SetPausePlayback writes the pause-mixer-output flag.
func (s *State) SetPausePlayback(v bool) { s.pausePlayback.Store(v) }

// PausePlayback reads the pause-mixer-output flag.
func (s *State) PausePlayback() bool { return s.pausePlayback.Load() }

// SetPauseConvolution writes the bypass-convolvers flag.
func (s *State) SetPauseConvolution(v bool) { s.pauseConvolution.Store(v) }

// PauseConvolution reads the bypass-convolvers flag.
func (s *State) PauseConvolution() bool { return s.pauseConvolution.Load() }
