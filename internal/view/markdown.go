package view

import (
	"fmt"
	"io"
	"strings"
)

// MarkdownFormatter formats an entry as Markdown.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Render writes the entry as a linked bullet list to w.
func (f *MarkdownFormatter) Render(w io.Writer, fr Frame) error {
	title := "factpane"
	if fr.Configuration.FavoriteEmoji != "" {
		title = fr.Configuration.FavoriteEmoji + " " + title
	}
	fmt.Fprintf(w, "# %s\n\n", title)
	fmt.Fprintf(w, "_%s", fr.Entry.Date.UTC().Format("2006-01-02 15:04:05 UTC"))
	if fr.Source != "" {
		fmt.Fprintf(w, " · %s", fr.Source)
	}
	fmt.Fprint(w, "_\n\n")

	if len(fr.Entry.Texts) == 0 {
		fmt.Fprintln(w, "No facts.")
	}
	for _, text := range fr.Entry.Texts {
		fmt.Fprintf(w, "- [%s](<%s>)\n", escapeMarkdown(text), DeepLink(text))
	}

	if fr.Policy != nil {
		fmt.Fprintf(w, "\n*Refresh: %s*\n", fr.Policy.String())
	}
	return nil
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	`[`, `\[`,
	`]`, `\]`,
	"`", "\\`",
	`*`, `\*`,
	`_`, `\_`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(strings.Join(strings.Fields(s), " "))
}
