package main

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// painter styles text only when writing to a terminal.
type painter struct {
	tty bool
}

func newPainter(w io.Writer) painter {
	f, ok := w.(*os.File)
	return painter{tty: ok && term.IsTerminal(int(f.Fd()))}
}

func (p painter) render(s lipgloss.Style, text string) string {
	if !p.tty {
		return text
	}
	return s.Render(text)
}

func (p painter) title(text string) string { return p.render(titleStyle, text) }
func (p painter) err(text string) string   { return p.render(errorStyle, text) }
func (p painter) dim(text string) string   { return p.render(dimStyle, text) }
