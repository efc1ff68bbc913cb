package main

import (
	"fmt"
	"math"
	"time"

	"github.com/nsf/termbox-go"

	"github.com/meko-binsim/binsimd/control"
	"github.com/meko-binsim/binsimd/pipeline"
)

const (
	colDef    = termbox.ColorDefault
	colWhite  = termbox.ColorWhite
	colRed    = termbox.ColorRed
	colGreen  = termbox.ColorGreen
	colYellow = termbox.ColorYellow
	colBlue   = termbox.ColorBlue
	colCyan   = termbox.ColorCyan
)

// tuiState is read-only: control in this system is OSC-only (spec.md
// §6), so the TUI only observes State and Pipeline, never mutates them.
type tuiState struct {
	state *control.State
	pipe  *pipeline.Pipeline
	exit  bool

	scrollOffset int
}

func runTUI(state *control.State, pipe *pipeline.Pipeline) {
	if err := termbox.Init(); err != nil {
		//nolint:forbidigo // TUI initialization error requires direct output
		fmt.Printf("Failed to initialize TUI: %v\n", err)
		return
	}
	defer termbox.Close()

	termbox.SetInputMode(termbox.InputEsc)

	ts := &tuiState{state: state, pipe: pipe}

	eventQueue := make(chan termbox.Event)
	go func() {
		for {
			eventQueue <- termbox.PollEvent()
		}
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	drawTUI(ts)

	for !ts.exit {
		select {
		case ev := <-eventQueue:
			switch ev.Type {
			case termbox.EventKey:
				handleTUIKey(ev, ts)
			case termbox.EventResize:
				drawTUI(ts)
			}
		case <-ticker.C:
			drawTUI(ts)
		}
	}
}

func handleTUIKey(ev termbox.Event, ts *tuiState) {
	if ev.Key == termbox.KeyEsc || ev.Ch == 'q' {
		ts.exit = true
		return
	}

	maxOffset := ts.state.NumChannels() - 1
	if maxOffset < 0 {
		maxOffset = 0
	}

	switch ev.Key {
	case termbox.KeyArrowUp:
		if ts.scrollOffset > 0 {
			ts.scrollOffset--
		}
	case termbox.KeyArrowDown:
		if ts.scrollOffset < maxOffset {
			ts.scrollOffset++
		}
	case termbox.KeyPgup:
		ts.scrollOffset -= 10
		if ts.scrollOffset < 0 {
			ts.scrollOffset = 0
		}
	case termbox.KeyPgdn:
		ts.scrollOffset += 10
		if ts.scrollOffset > maxOffset {
			ts.scrollOffset = maxOffset
		}
	}
}

func drawTUI(ts *tuiState) {
	_ = termbox.Clear(colDef, colDef)

	printTB(0, 0, colCyan, colDef, "binaural synthesis monitor")
	printTB(0, 1, colDef, colDef, "Up/Down/PgUp/PgDn to scroll channels. 'q' or Esc to quit.")
	printTB(0, 2, colDef, colDef, "----------------------------------------------------")

	playback := "running"
	if ts.state.PausePlayback() {
		playback = "PAUSED"
	}
	convolution := "active"
	if ts.state.PauseConvolution() {
		convolution = "BYPASSED"
	}
	printTB(0, 3, colWhite, colDef, fmt.Sprintf("playback: %-8s convolution: %-8s", playback, convolution))

	_, h := termbox.Size()
	listStartY := 5
	listHeight := h - listStartY - 4
	if listHeight < 1 {
		listHeight = 1
	}

	printTB(0, listStartY-1, colYellow, colDef, fmt.Sprintf("%-4s %-26s %-26s", "ch", "early pose key", "late pose key"))

	n := ts.state.NumChannels()
	for i := range listHeight {
		idx := ts.scrollOffset + i
		if idx >= n {
			break
		}
		early := ts.state.EarlyKey(idx).String()
		late := ts.state.LateKey(idx).String()
		printTB(0, listStartY+i, colWhite, colDef, fmt.Sprintf("%-4d %-26s %-26s", idx, early, late))
	}

	meterY := listStartY + listHeight + 1
	peak := ts.pipe.LastPeak()
	db := linToDB(peak)
	meterColor := colGreen
	if peak > 1 {
		meterColor = colRed
	}
	drawMeter(meterY, "Peak ", db, meterColor)

	termbox.Flush()
}

func linToDB(l float32) float64 {
	if l <= 1e-9 {
		return -96.0
	}
	return 20 * math.Log10(float64(l))
}

func drawMeter(yPos int, label string, db float64, color termbox.Attribute) {
	const (
		barWidth = 60
		xPos     = 2
		minDB    = -96.0
		maxDB    = 6.0
	)

	if db < minDB {
		db = minDB
	}
	if db > maxDB {
		db = maxDB
	}

	ratio := (db - minDB) / (maxDB - minDB)
	filled := int(ratio * float64(barWidth))

	printTB(xPos, yPos, colDef, colDef, fmt.Sprintf("%s [%-6.1f dB] ", label, db))

	startX := xPos + 15
	for i := range barWidth {
		barChar := '░'
		if i < filled {
			barChar = '█'
		}
		termbox.SetCell(startX+i, yPos, barChar, color, colDef)
	}
}

func printTB(x, y int, fg, bg termbox.Attribute, msg string) {
	for _, c := range msg {
		termbox.SetCell(x, y, c, fg, bg)
		x++
	}
}
