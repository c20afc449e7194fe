// Package view renders timeline entries for terminals, JSON consumers and
// Markdown documents.
package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/factpane/internal/privacy"
	"github.com/ppiankov/factpane/internal/timeline"
)

// Output formats.
const (
	FormatTerminal = "terminal"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

const deepLinkPrefix = "widget://deeplink?text="

// Frame is everything a renderer shows for one entry.
type Frame struct {
	Entry         timeline.Entry
	Policy        *timeline.Policy // nil outside the timeline callback
	Configuration timeline.Configuration
	Source        string
}

// Renderer writes a frame to w.
type Renderer interface {
	Render(w io.Writer, f Frame) error
}

// Options configures New.
type Options struct {
	Width    int
	Color    bool
	Redactor *privacy.Redactor
}

// New returns the renderer for format, wrapped with redaction when set.
func New(format string, opts Options) (Renderer, error) {
	var r Renderer
	switch strings.ToLower(format) {
	case FormatTerminal, "":
		r = NewTerminal(opts.Width, opts.Color)
	case FormatJSON:
		r = NewJSON()
	case FormatMarkdown, "md":
		r = NewMarkdown()
	default:
		return nil, fmt.Errorf("unknown format %q (want terminal, json or markdown)", format)
	}
	if opts.Redactor != nil {
		r = Redacted(r, opts.Redactor)
	}
	return r, nil
}

type redacted struct {
	next     Renderer
	redactor *privacy.Redactor
}

// Redacted masks the frame's texts before handing it to next.
func Redacted(next Renderer, r *privacy.Redactor) Renderer {
	return &redacted{next: next, redactor: r}
}

func (r *redacted) Render(w io.Writer, f Frame) error {
	f.Entry.Texts = r.redactor.Texts(f.Entry.Texts)
	return r.next.Render(w, f)
}

// DeepLink returns the link a host opens when the text is tapped. The text is
// percent-encoded with the URL query character set, so '&' and '=' pass
// through unchanged.
func DeepLink(text string) string {
	return deepLinkPrefix + escapeQuery(text)
}

const upperhex = "0123456789ABCDEF"

func escapeQuery(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if queryAllowed(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func queryAllowed(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!$&'()*+,-./:;=?@_~", c) >= 0
}
