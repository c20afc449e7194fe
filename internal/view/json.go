package view

import (
	"io"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ppiankov/factpane/internal/timeline"
)

type jsonFrame struct {
	Date          time.Time               `json:"date"`
	Source        string                  `json:"source,omitempty"`
	Texts         []jsonText              `json:"texts"`
	Policy        *timeline.Policy        `json:"policy,omitempty"`
	Configuration *timeline.Configuration `json:"configuration,omitempty"`
}

type jsonText struct {
	Text string `json:"text"`
	Link string `json:"link"`
}

// JSONFormatter formats an entry as JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// Render writes the frame as indented JSON to w.
func (f *JSONFormatter) Render(w io.Writer, fr Frame) error {
	out := jsonFrame{
		Date:   fr.Entry.Date,
		Source: fr.Source,
		Texts:  make([]jsonText, 0, len(fr.Entry.Texts)),
		Policy: fr.Policy,
	}
	for _, t := range fr.Entry.Texts {
		out.Texts = append(out.Texts, jsonText{Text: t, Link: DeepLink(t)})
	}
	if fr.Configuration != (timeline.Configuration{}) {
		cfg := fr.Configuration
		out.Configuration = &cfg
	}

	data, err := sonic.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
