package control

import (
	"fmt"
	"log/slog"

	"github.com/hypebeast/go-osc/osc"

	"github.com/meko-binsim/binsimd/internal/ratelog"
	"github.com/meko-binsim/binsimd/pose"
)

// sliceRange mirrors pyBinSim's select_slice switcher: which [start,end)
// window of the 9-int pose key an address writes.
type sliceRange struct{ start, end int }

var earlyAddresses = map[string]sliceRange{
	"/pyBinSimFilter":            {pose.IdxOrientationStart, pose.IdxFullEnd},
	"/pyBinSimFilterShort":       {pose.IdxOrientationStart, pose.IdxShortEnd},
	"/pyBinSimFilterOrientation": {pose.IdxOrientationStart, pose.IdxOrientationEnd},
	"/pyBinSimFilterPosition":    {pose.IdxPositionStart, pose.IdxPositionEnd},
	"/pyBinSimFilterCustom":      {pose.IdxCustomStart, pose.IdxCustomEnd},
}

var lateAddresses = map[string]sliceRange{
	"/pyBinSimLateReverbFilter":            {pose.IdxOrientationStart, pose.IdxFullEnd},
	"/pyBinSimLateReverbFilterShort":       {pose.IdxOrientationStart, pose.IdxShortEnd},
	"/pyBinSimLateReverbFilterOrientation": {pose.IdxOrientationStart, pose.IdxOrientationEnd},
	"/pyBinSimLateReverbFilterPosition":    {pose.IdxPositionStart, pose.IdxPositionEnd},
	"/pyBinSimLateReverbFilterCustom":      {pose.IdxCustomStart, pose.IdxCustomEnd},
}

// Receiver wraps a go-osc server and routes incoming messages into a State
// (spec §4.4, §6 address table).
type Receiver struct {
	state  *State
	server *osc.Server
	warn   *ratelog.Limiter
}

// NewReceiver constructs a Receiver bound to addr (default
// "127.0.0.1:10000"), writing updates into state.
func NewReceiver(addr string, state *State) *Receiver {
	d := osc.NewStandardDispatcher()
	r := &Receiver{state: state, warn: ratelog.NewLimiter()}

	for addrPath, rng := range earlyAddresses {
		rng := rng
		d.AddMsgHandler(addrPath, func(msg *osc.Message) { r.handleKey(msg, rng, false) })
	}
	for addrPath, rng := range lateAddresses {
		rng := rng
		d.AddMsgHandler(addrPath, func(msg *osc.Message) { r.handleKey(msg, rng, true) })
	}
	d.AddMsgHandler("/pyBinSimFile", r.handleFile)
	d.AddMsgHandler("/pyBinSimPauseAudioPlayback", func(msg *osc.Message) {
		r.handlePause(msg, state.SetPausePlayback)
	})
	d.AddMsgHandler("/pyBinSimPauseConvolution", func(msg *osc.Message) {
		r.handlePause(msg, state.SetPauseConvolution)
	})

	r.server = &osc.Server{Addr: addr, Dispatcher: d}
	return r
}

// ListenAndServe blocks serving OSC messages until the connection errors or
// is closed (spec §5, T_recv "blocks on UDP receive").
func (r *Receiver) ListenAndServe() error {
	slog.Info("control: listening for OSC messages", "addr", r.server.Addr)
	return r.server.ListenAndServe()
}

// handleKey dispatches a /pyBinSimFilter* or /pyBinSimLateReverbFilter*
// message: args[0] is the channel index, the rest are the integer pose
// values for the address's slice (spec §4.4).
func (r *Receiver) handleKey(msg *osc.Message, rng sliceRange, late bool) {
	ch, rest, ok := splitChannelArgs(msg.Arguments)
	if !ok {
		slog.Warn("control: malformed message", "address", msg.Address)
		return
	}
	if !r.state.InRange(ch) {
		r.warn.Once(fmt.Sprintf("channel:%d", ch), func() {
			slog.Warn("control: channel out of range, dropping message", "channel", ch, "address", msg.Address)
		})
		return
	}

	want := rng.end - rng.start
	if len(rest) != want {
		slog.Warn("control: OSC identifier and key size mismatch", "address", msg.Address, "want", want, "got", len(rest))
		return
	}

	vals := make([]int, want)
	for i, a := range rest {
		n, ok := toInt(a)
		if !ok {
			slog.Warn("control: non-numeric pose value, dropping message", "address", msg.Address)
			return
		}
		vals[i] = n
	}

	var err error
	if late {
		err = r.state.SetLateSlice(ch, rng.start, rng.end, vals)
	} else {
		err = r.state.SetEarlySlice(ch, rng.start, rng.end, vals)
	}
	if err != nil {
		slog.Warn("control: failed to apply pose update", "address", msg.Address, "err", err)
	}
}

func (r *Receiver) handleFile(msg *osc.Message) {
	if len(msg.Arguments) != 1 {
		slog.Warn("control: /pyBinSimFile expects exactly one argument")
		return
	}
	path, ok := msg.Arguments[0].(string)
	if !ok {
		slog.Warn("control: /pyBinSimFile argument is not a string")
		return
	}
	r.state.SetFileList(path)
}

func (r *Receiver) handlePause(msg *osc.Message, set func(bool)) {
	if len(msg.Arguments) != 1 {
		slog.Warn("control: pause message expects exactly one argument", "address", msg.Address)
		return
	}
	b, ok := toBool(msg.Arguments[0])
	if !ok {
		slog.Warn("control: pause argument is not boolean-like", "address", msg.Address)
		return
	}
	set(b)
}

// splitChannelArgs interprets args[0] as the channel index and returns the
// remaining arguments.
func splitChannelArgs(args []any) (channel int, rest []any, ok bool) {
	if len(args) < 1 {
		return 0, nil, false
	}
	ch, ok := toInt(args[0])
	if !ok {
		return 0, nil, false
	}
	return ch, args[1:], true
}

func toInt(a any) (int, bool) {
	switch v := a.(type) {
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float32:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func toBool(a any) (bool, bool) {
	switch v := a.(type) {
	case bool:
		return v, true
	case int32:
		return v != 0, true
	case float32:
		return v != 0, true
	default:
		return false, false
	}
}
