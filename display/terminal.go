// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package display

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ffutop/stak/gpio"
	"golang.org/x/term"
)

// buttonHold is how long a simulated button stays down after its key.
const buttonHold = 150 * time.Millisecond

// ErrNoTTY is returned when the terminal display is selected without one.
var ErrNoTTY = errors.New("terminal display requires a tty")

// Wiring names the simulated pins the terminal drives. A negative button
// pin has no key.
type Wiring struct {
	EncoderA, EncoderB     int
	Rotary, Shutter, Power int
	ActiveLow              bool
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type keyMap struct {
	CrankUp   key.Binding
	CrankDown key.Binding
	Shutter   key.Binding
	Power     key.Binding
	Rotary    key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		CrankUp:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "crank up")),
		CrankDown: key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "crank down")),
		Shutter:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "shutter")),
		Power:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "power")),
		Rotary:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "button")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) help() string {
	var parts []string
	for _, b := range []key.Binding{k.CrankDown, k.CrankUp, k.Rotary, k.Shutter, k.Power, k.Quit} {
		if !b.Enabled() {
			continue
		}
		parts = append(parts, b.Help().Key+" "+b.Help().Desc)
	}
	return strings.Join(parts, " • ")
}

type frameMsg []byte

type releaseMsg int

// model renders frames as half-block cells, two pixel rows per line, and
// turns keys into pin levels on the simulated bank.
type model struct {
	width, height int
	frame         []byte
	sim           *gpio.Sim
	wiring        Wiring
	keys          keyMap
	onQuit        func()
}

func newModel(width, height int, sim *gpio.Sim, w Wiring, onQuit func()) *model {
	keys := defaultKeyMap()
	keys.Rotary.SetEnabled(w.Rotary >= 0)
	keys.Shutter.SetEnabled(w.Shutter >= 0)
	keys.Power.SetEnabled(w.Power >= 0)
	return &model{
		width:  width,
		height: height,
		frame:  make([]byte, width*height*BytesPerPixel),
		sim:    sim,
		wiring: w,
		keys:   keys,
		onQuit: onQuit,
	}
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.CrankUp):
			m.crank(1)
		case key.Matches(msg, m.keys.CrankDown):
			m.crank(-1)
		case key.Matches(msg, m.keys.Shutter):
			return m, m.press(m.wiring.Shutter)
		case key.Matches(msg, m.keys.Power):
			return m, m.press(m.wiring.Power)
		case key.Matches(msg, m.keys.Rotary):
			return m, m.press(m.wiring.Rotary)
		}

	case releaseMsg:
		m.sim.Set(int(msg), m.wiring.ActiveLow)

	case frameMsg:
		m.frame = msg
	}
	return m, nil
}

// gray is the forward quadrature sequence of (A<<1)|B readings.
var gray = [4]uint8{0, 1, 3, 2}

// crank moves the simulated encoder one transition along the sequence.
func (m *model) crank(dir int) {
	reading := uint8(0)
	if m.sim.Level(m.wiring.EncoderA) {
		reading |= 2
	}
	if m.sim.Level(m.wiring.EncoderB) {
		reading |= 1
	}
	idx := 0
	for i, g := range gray {
		if g == reading {
			idx = i
		}
	}
	next := gray[(idx+dir+len(gray))%len(gray)]
	m.sim.Set(m.wiring.EncoderA, next&2 != 0)
	m.sim.Set(m.wiring.EncoderB, next&1 != 0)
}

func (m *model) press(pin int) tea.Cmd {
	m.sim.Set(pin, !m.wiring.ActiveLow)
	return tea.Tick(buttonHold, func(time.Time) tea.Msg {
		return releaseMsg(pin)
	})
}

func (m *model) pixel(x, y int) uint16 {
	off := (y*m.width + x) * BytesPerPixel
	if off+BytesPerPixel > len(m.frame) {
		return 0
	}
	return binary.LittleEndian.Uint16(m.frame[off:])
}

func hexColor(c uint16) lipgloss.Color {
	r, g, b := RGB(c)
	return lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", r, g, b))
}

func (m *model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("stak"))
	sb.WriteString("\n\n")
	for y := 0; y < m.height; y += 2 {
		for x := 0; x < m.width; x++ {
			style := lipgloss.NewStyle().Foreground(hexColor(m.pixel(x, y)))
			if y+1 < m.height {
				style = style.Background(hexColor(m.pixel(x, y+1)))
			}
			sb.WriteString(style.Render("▀"))
		}
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	sb.WriteString(helpStyle.Render(m.keys.help()))
	return sb.String()
}

// Terminal shows frames in the controlling terminal and stands in for the
// device buttons and crank.
type Terminal struct {
	width, height int
	fb            []byte
	program       *tea.Program
	done          chan error

	closeOnce sync.Once
	closeErr  error
}

// NewTerminal starts the terminal UI. Keys drive sim according to w;
// onQuit runs when the user asks to quit.
func NewTerminal(width, height int, sim *gpio.Sim, w Wiring, onQuit func()) (*Terminal, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return nil, ErrNoTTY
	}
	if sim == nil {
		return nil, errors.New("terminal display requires the sim pin bank")
	}
	t := &Terminal{
		width:   width,
		height:  height,
		fb:      make([]byte, width*height*BytesPerPixel),
		program: tea.NewProgram(newModel(width, height, sim, w, onQuit), tea.WithAltScreen()),
		done:    make(chan error, 1),
	}
	go func() {
		_, err := t.program.Run()
		t.done <- err
	}()
	return t, nil
}

func (t *Terminal) Size() (int, int)    { return t.width, t.height }
func (t *Terminal) Framebuffer() []byte { return t.fb }
func (t *Terminal) Stride() int         { return t.width * BytesPerPixel }

// Update hands a copy of the framebuffer to the UI goroutine.
func (t *Terminal) Update() error {
	frame := make([]byte, len(t.fb))
	copy(frame, t.fb)
	t.program.Send(frameMsg(frame))
	return nil
}

// Close stops the UI and restores the terminal.
func (t *Terminal) Close() error {
	t.closeOnce.Do(func() {
		t.program.Quit()
		t.closeErr = <-t.done
	})
	return t.closeErr
}
