package timeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ppiankov/factpane/internal/logging"
	"github.com/ppiankov/factpane/internal/source"
)

const (
	DefaultInterval        = 3 * time.Minute
	DefaultPlaceholderText = "Empty"
)

// Callback names reported to observers.
const (
	CallbackSnapshot = "snapshot"
	CallbackTimeline = "timeline"
)

// FetchRecord describes one fetch made on behalf of a host callback.
type FetchRecord struct {
	Callback   string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Texts      int
	Err        error
	Cancelled  bool
	// Policy is set for timeline callbacks that produced a result.
	Policy *Policy
}

// Observer receives a record after every fetch. ObserveFetch runs
// synchronously before the callback returns, so implementations must be quick
// and safe for concurrent use.
type Observer interface {
	ObserveFetch(rec FetchRecord)
}

// Provider answers the host callbacks. It holds no state between calls and
// is safe for concurrent use.
type Provider struct {
	fetcher         source.Fetcher
	interval        time.Duration
	placeholderText string
	logger          *slog.Logger
	observers       []Observer
}

// Option configures a Provider.
type Option func(*Provider)

// WithInterval sets the delay between a successful timeline and the next reload.
func WithInterval(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithPlaceholderText sets the sentinel text returned by Placeholder.
func WithPlaceholderText(s string) Option {
	return func(p *Provider) {
		if s != "" {
			p.placeholderText = s
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver adds an observer notified after every fetch.
func WithObserver(o Observer) Option {
	return func(p *Provider) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// NewProvider creates a Provider fetching through f.
func NewProvider(f source.Fetcher, opts ...Option) *Provider {
	p := &Provider{
		fetcher:         f,
		interval:        DefaultInterval,
		placeholderText: DefaultPlaceholderText,
		logger:          logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the configured reload interval.
func (p *Provider) Interval() time.Duration {
	return p.interval
}

// Placeholder returns a synthetic entry without touching the network.
func (p *Provider) Placeholder(_ Context, now time.Time) Entry {
	return Entry{Date: now, Texts: []string{p.placeholderText}}
}

// Snapshot performs one fetch for a preview. A failed fetch yields an entry
// with no texts; the error return is reserved for cancellation.
func (p *Provider) Snapshot(ctx context.Context, _ Context, now time.Time) (Entry, error) {
	texts, rec := p.fetch(ctx, CallbackSnapshot)
	p.notify(rec)
	if rec.Cancelled {
		return Entry{}, ctx.Err()
	}
	if rec.Err != nil {
		return Entry{Date: now, Texts: []string{}}, nil
	}
	return Entry{Date: now, Texts: texts}, nil
}

// Timeline fetches and builds the timeline for now. On success it holds a
// single entry and reloads after the interval. On failure it holds no entry
// and never reloads on its own. The error return is reserved for
// cancellation, in which case no timeline is produced.
func (p *Provider) Timeline(ctx context.Context, _ Context, now time.Time) (Timeline, error) {
	texts, rec := p.fetch(ctx, CallbackTimeline)
	if rec.Cancelled {
		p.notify(rec)
		return Timeline{}, ctx.Err()
	}

	if rec.Err != nil {
		policy := Never()
		rec.Policy = &policy
		p.notify(rec)
		return Timeline{Entries: []Entry{}, Policy: policy}, nil
	}

	policy := After(now.Add(p.interval))
	rec.Policy = &policy
	p.notify(rec)
	p.logger.Debug("timeline built", "source", rec.Source, "texts", len(texts), "policy", policy.String())

	return Timeline{
		Entries: []Entry{{Date: now, Texts: texts}},
		Policy:  policy,
	}, nil
}

// fetch runs the fetcher once. Failures are logged here; a fetch abandoned
// because ctx ended is marked Cancelled instead.
func (p *Provider) fetch(ctx context.Context, callback string) ([]string, FetchRecord) {
	started := time.Now()
	texts, err := p.fetcher.Fetch(ctx)
	if err == nil && texts == nil {
		texts = []string{}
	}
	rec := FetchRecord{
		Callback:   callback,
		Source:     p.fetcher.Name(),
		StartedAt:  started,
		FinishedAt: time.Now(),
		Texts:      len(texts),
		Err:        err,
		Cancelled:  err != nil && ctx.Err() != nil,
	}
	if err != nil && !rec.Cancelled {
		p.logger.Warn("fetch failed", "callback", callback, "source", rec.Source,
			"error_kind", source.KindOf(err).String(), "error", err)
	}
	return texts, rec
}

func (p *Provider) notify(rec FetchRecord) {
	for _, o := range p.observers {
		o.ObserveFetch(rec)
	}
}

// IsCancelled reports whether err came from a cancelled callback.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
