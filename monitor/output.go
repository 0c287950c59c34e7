package monitor

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/onnwee/chatgrep/chat"
)

// ColorMode controls colourised output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// ParseColorMode validates s. The empty string means auto.
func ParseColorMode(s string) (ColorMode, error) {
	switch m := ColorMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ColorAuto, nil
	case ColorAuto, ColorAlways, ColorNever:
		return m, nil
	default:
		return "", fmt.Errorf("invalid color mode %q (want auto, always or never)", s)
	}
}

// Emitter writes one matched message.
type Emitter interface {
	Emit(msg chat.Message) error
}

var channelPalette = []lipgloss.Color{
	"#A855F7", "#22C55E", "#EAB308", "#EF4444", "#3B82F6",
	"#EC4899", "#14B8A6", "#F97316", "#8B5CF6", "#84CC16",
}

// LineEmitter writes `<channel> | <sender>: <text>` lines to w. When colour is
// enabled the channel prefix gets a stable per-channel colour.
type LineEmitter struct {
	w        io.Writer
	color    bool
	renderer *lipgloss.Renderer

	mu     sync.Mutex
	styles map[chat.ChannelName]lipgloss.Style
}

// NewLineEmitter returns an emitter for w. ColorAuto enables colour only when
// w is a terminal.
func NewLineEmitter(w io.Writer, mode ColorMode) *LineEmitter {
	e := &LineEmitter{w: w, styles: make(map[chat.ChannelName]lipgloss.Style)}
	switch mode {
	case ColorAlways:
		e.color = true
	case ColorNever:
		e.color = false
	default:
		e.color = isTerminal(w)
	}
	if e.color {
		e.renderer = lipgloss.NewRenderer(w)
		e.renderer.SetColorProfile(termenv.TrueColor)
	}
	return e
}

// Colored reports whether output carries ANSI colour.
func (e *LineEmitter) Colored() bool { return e.color }

// Emit writes msg as a single line.
func (e *LineEmitter) Emit(msg chat.Message) error {
	line := msg.String()
	if e.color {
		line = e.style(msg.Channel()).Render(string(msg.Channel())) + " | " + msg.Nickname() + ": " + msg.Text()
	}
	_, err := fmt.Fprintln(e.w, line)
	return err
}

func (e *LineEmitter) style(c chat.ChannelName) lipgloss.Style {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.styles[c]; ok {
		return s
	}
	color := channelPalette[xxhash.Sum64String(string(c))%uint64(len(channelPalette))]
	s := e.renderer.NewStyle().Bold(true).Foreground(color)
	e.styles[c] = s
	return s
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
