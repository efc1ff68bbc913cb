package main

import (
	"github.com/meko-binsim/binsimd/control"
	"github.com/meko-binsim/binsimd/pipeline"
	"github.com/meko-binsim/binsimd/webui"
)

// stateMonitor adapts control.State and pipeline.Pipeline to
// webui.Monitor, so the monitoring server never needs to import either
// package directly.
type stateMonitor struct {
	state *control.State
	pipe  *pipeline.Pipeline
}

func (m *stateMonitor) Snapshot() webui.Snapshot {
	n := m.state.NumChannels()
	channels := make([]webui.ChannelSnapshot, n)
	for i := range n {
		channels[i] = webui.ChannelSnapshot{
			Channel:  i,
			EarlyKey: m.state.EarlyKey(i).String(),
			LateKey:  m.state.LateKey(i).String(),
		}
	}
	return webui.Snapshot{
		Channels:         channels,
		PausePlayback:    m.state.PausePlayback(),
		PauseConvolution: m.state.PauseConvolution(),
		PeakLevel:        m.pipe.LastPeak(),
	}
}
