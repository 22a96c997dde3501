package flash

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Semantic colors, ANSI codes for broad terminal compatibility.
const (
	ColorSuccess lipgloss.Color = "2" // Green
	ColorError   lipgloss.Color = "1" // Red
	ColorInfo    lipgloss.Color = "6" // Cyan
	ColorMuted   lipgloss.Color = "8" // Gray
)

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolFail    = "✗"
	SymbolInfo    = "•"
)

// DisableColors switches lipgloss to plain ASCII output (--no-color).
func DisableColors() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// Printer writes alerts to a terminal, one styled line each.
type Printer struct {
	mu           sync.Mutex
	w            io.Writer
	styled       bool
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
	infoStyle    lipgloss.Style
	mutedStyle   lipgloss.Style
}

// NewPrinter creates a Printer writing to w. Styling is only applied when w
// is a terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		w:            w,
		styled:       isTerminal(w),
		errorStyle:   lipgloss.NewStyle().Foreground(ColorError),
		successStyle: lipgloss.NewStyle().Foreground(ColorSuccess),
		infoStyle:    lipgloss.NewStyle().Foreground(ColorInfo),
		mutedStyle:   lipgloss.NewStyle().Foreground(ColorMuted),
	}
}

// Alert prints the alert.
func (p *Printer) Alert(channel, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, p.Render(channel, message))
}

// Render formats an alert line without printing it.
func (p *Printer) Render(channel, message string) string {
	symbol, style := SymbolInfo, p.infoStyle
	switch LevelOf(channel) {
	case LevelError:
		symbol, style = SymbolFail, p.errorStyle
	case LevelSuccess:
		symbol, style = SymbolSuccess, p.successStyle
	}

	if !p.styled {
		return fmt.Sprintf("%s %s [%s]", symbol, message, channel)
	}
	return style.Render(symbol+" "+message) + " " + p.mutedStyle.Render("["+channel+"]")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
