package view

import (
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/ppiankov/factpane/internal/timeline"
)

const (
	minWidth        = 8
	backgroundAlpha = 0.7
	ellipsis        = "…"
)

// TerminalFormatter draws an entry as a fixed-width pane on a random
// background. Each text takes one line followed by a divider.
type TerminalFormatter struct {
	width int
	color bool
	rng   *rand.Rand
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(width int, color bool) *TerminalFormatter {
	if width < minWidth {
		width = minWidth
	}
	return &TerminalFormatter{width: width, color: color}
}

// WithRand makes background colors reproducible.
func (f *TerminalFormatter) WithRand(r *rand.Rand) *TerminalFormatter {
	f.rng = r
	return f
}

// Render writes the pane to w. A new background is picked on every call.
func (f *TerminalFormatter) Render(w io.Writer, fr Frame) error {
	pane := f.paint()
	inner := f.width - 2

	header := "factpane"
	if fr.Source != "" {
		header += " · " + fr.Source
	}
	if emoji := fr.Configuration.FavoriteEmoji; emoji != "" {
		header = emoji + " " + header
	}
	lines := []string{f.pad(header, inner)}

	if len(fr.Entry.Texts) == 0 {
		lines = append(lines, f.pad("", inner))
	}
	for _, text := range fr.Entry.Texts {
		lines = append(lines, f.pad(text, inner), " "+strings.Repeat("─", inner)+" ")
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, pane.Sprint(line)); err != nil {
			return err
		}
	}

	footer := "updated " + fr.Entry.Date.Local().Format("15:04:05")
	if fr.Policy != nil {
		footer += " · " + describePolicy(*fr.Policy)
	}
	_, err := fmt.Fprintln(w, f.dim(runewidth.Truncate(footer, f.width, ellipsis)))
	return err
}

// pad truncates s to width cells and fills the rest with spaces.
func (f *TerminalFormatter) pad(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	s = runewidth.Truncate(s, width, ellipsis)
	return " " + runewidth.FillRight(s, width) + " "
}

// paint picks a random background blended at 70% over black, with white text.
func (f *TerminalFormatter) paint() *color.Color {
	r, g, b := f.channel(), f.channel(), f.channel()
	c := color.New(color.FgWhite).AddBgRGB(r, g, b)
	if f.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func (f *TerminalFormatter) channel() int {
	v := rand.Float64()
	if f.rng != nil {
		v = f.rng.Float64()
	}
	return int(v * 255 * backgroundAlpha)
}

func (f *TerminalFormatter) dim(s string) string {
	if !f.color {
		return s
	}
	c := color.New(color.Faint)
	c.EnableColor()
	return c.Sprint(s)
}

func describePolicy(p timeline.Policy) string {
	if p.Kind == timeline.PolicyAfter {
		return "next " + p.Date.Local().Format("15:04:05")
	}
	return "no automatic refresh"
}
