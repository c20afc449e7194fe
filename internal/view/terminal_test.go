package view

import (
	"bytes"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factpane/internal/timeline"
)

var testDate = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func frame(texts ...string) Frame {
	return Frame{
		Entry:  timeline.Entry{Date: testDate, Texts: texts},
		Source: "json",
	}
}

func paneLines(out string) []string {
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	return lines[:len(lines)-1] // drop footer
}

func TestTerminal_Plain(t *testing.T) {
	var buf bytes.Buffer
	f := NewTerminal(24, false)
	require.NoError(t, f.Render(&buf, frame("Cats sleep 16 hours", "Mother cats teach their kittens to use the litter box")))

	out := buf.String()
	assert.NotContains(t, out, "\033[")
	assert.Contains(t, out, "factpane · json")
	assert.Contains(t, out, "Cats sleep 16 hours")
	assert.Contains(t, out, "Mother cats teach the…")
	assert.Equal(t, 2, strings.Count(out, strings.Repeat("─", 22)))
	assert.Contains(t, out, "updated ")

	for _, line := range paneLines(out) {
		assert.Equal(t, 24, runewidth.StringWidth(line), "line %q", line)
	}
}

func TestTerminal_WideRunes(t *testing.T) {
	var buf bytes.Buffer
	f := NewTerminal(12, false)
	require.NoError(t, f.Render(&buf, frame("猫は一日十六時間眠る")))

	for _, line := range paneLines(buf.String()) {
		assert.Equal(t, 12, runewidth.StringWidth(line), "line %q", line)
	}
	assert.Contains(t, buf.String(), "…")
}

func TestTerminal_EmptyEntry(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTerminal(20, false).Render(&buf, frame()))

	lines := paneLines(buf.String())
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Repeat(" ", 20), lines[1])
	assert.NotContains(t, buf.String(), "─")
}

func TestTerminal_Policy(t *testing.T) {
	never := timeline.Never()
	fr := frame("Cats have 32 muscles in each ear")
	fr.Policy = &never

	var buf bytes.Buffer
	require.NoError(t, NewTerminal(60, false).Render(&buf, fr))
	assert.Contains(t, buf.String(), "no automatic refresh")

	after := timeline.After(testDate.Add(3 * time.Minute))
	fr.Policy = &after
	buf.Reset()
	require.NoError(t, NewTerminal(60, false).Render(&buf, fr))
	assert.Contains(t, buf.String(), "next ")
}

func TestTerminal_FavoriteEmoji(t *testing.T) {
	fr := frame("Cats purr at 25 Hz")
	fr.Configuration = timeline.Configuration{FavoriteEmoji: "😺"}

	var buf bytes.Buffer
	require.NoError(t, NewTerminal(30, false).Render(&buf, fr))
	assert.True(t, strings.HasPrefix(buf.String(), " 😺 factpane"))
}

func TestTerminal_ColorIsDeterministicWithSeed(t *testing.T) {
	render := func() string {
		var buf bytes.Buffer
		f := NewTerminal(20, true).WithRand(rand.New(rand.NewPCG(1, 2)))
		require.NoError(t, f.Render(&buf, frame("Cats purr")))
		return buf.String()
	}

	first := render()
	assert.Contains(t, first, "\033[37;48;2;")
	assert.Equal(t, first, render())
}

func TestTerminal_BackgroundIsDimmed(t *testing.T) {
	f := NewTerminal(20, true).WithRand(rand.New(rand.NewPCG(7, 7)))
	for range 1000 {
		v := f.channel()
		assert.GreaterOrEqual(t, v, 0)
		assert.LessOrEqual(t, v, 178)
	}
}

func TestNewTerminal_MinWidth(t *testing.T) {
	assert.Equal(t, minWidth, NewTerminal(0, false).width)
}
