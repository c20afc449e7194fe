// Package host drives a timeline provider the way a widget host would: it
// asks for a timeline, displays it, and asks again when the refresh policy or
// an external trigger says so.
package host

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/factpane/internal/logging"
	"github.com/ppiankov/factpane/internal/timeline"
)

// Trigger origins.
const (
	OriginStart    = "start"
	OriginSchedule = "schedule"
	OriginAPI      = "api"
	OriginHTTP     = "http"
	OriginSignal   = "signal"
	OriginFile     = "file"
)

// TimelineProvider builds timelines. *timeline.Provider implements it.
type TimelineProvider interface {
	Timeline(ctx context.Context, hctx timeline.Context, now time.Time) (timeline.Timeline, error)
}

// TriggerRecorder is told about every external reload trigger.
type TriggerRecorder interface {
	RecordTrigger(origin string)
}

// Status describes the scheduling state of a Host.
type Status struct {
	Policy     *timeline.Policy `json:"policy,omitempty"`
	LastRun    time.Time        `json:"last_run"`
	LastOrigin string           `json:"last_origin,omitempty"`
	Runs       int              `json:"runs"`
	Superseded int              `json:"superseded"`
}

// Host runs the refresh loop. Create it with New and start it with Run.
type Host struct {
	provider TimelineProvider
	hctx     timeline.Context
	onEntry  func(timeline.Entry, timeline.Policy)
	recorder TriggerRecorder
	logger   *slog.Logger
	now      func() time.Time

	trigger chan string

	mu         sync.RWMutex
	current    timeline.Entry
	hasCurrent bool
	status     Status
}

// Option configures a Host.
type Option func(*Host)

// OnEntry sets a callback run after every completed timeline with the entry
// on display and the policy in force. The entry may be empty before the first
// successful fetch.
func OnEntry(fn func(timeline.Entry, timeline.Policy)) Option {
	return func(h *Host) { h.onEntry = fn }
}

// WithRecorder sets the recorder notified of external triggers.
func WithRecorder(r TriggerRecorder) Option {
	return func(h *Host) { h.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock replaces time.Now for stamping entries.
func WithClock(now func() time.Time) Option {
	return func(h *Host) {
		if now != nil {
			h.now = now
		}
	}
}

// WithContext sets the context passed with every timeline request.
func WithContext(hctx timeline.Context) Option {
	return func(h *Host) { h.hctx = hctx }
}

// New creates a Host for p.
func New(p TimelineProvider, opts ...Option) *Host {
	h := &Host{
		provider: p,
		logger:   logging.Discard(),
		now:      time.Now,
		trigger:  make(chan string, 1),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Reload asks for a fresh timeline. See Trigger.
func (h *Host) Reload() {
	h.Trigger(OriginAPI)
}

// Trigger requests a reload from origin. It never blocks. Triggers that
// arrive before the loop picks up a pending one are merged into it, and a
// trigger arriving during a fetch cancels that fetch and starts over.
func (h *Host) Trigger(origin string) {
	if h.recorder != nil {
		h.recorder.RecordTrigger(origin)
	}
	select {
	case h.trigger <- origin:
	default:
	}
}

// Current returns the entry on display, if any.
func (h *Host) Current() (timeline.Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.hasCurrent {
		return timeline.Entry{}, false
	}
	e := h.current
	e.Texts = append([]string(nil), h.current.Texts...)
	return e, true
}

// Status returns a copy of the scheduling state.
func (h *Host) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := h.status
	if s.Policy != nil {
		p := *s.Policy
		s.Policy = &p
	}
	return s
}

type result struct {
	tl  timeline.Timeline
	err error
}

// Run requests a timeline immediately and keeps refreshing until ctx is done.
// It returns nil on a clean shutdown. Run must not be called concurrently.
func (h *Host) Run(ctx context.Context) error {
	origin := OriginStart
	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan result, 1)
		go func(now time.Time) {
			tl, err := h.provider.Timeline(runCtx, h.hctx, now)
			done <- result{tl: tl, err: err}
		}(h.now())

		var res result
		select {
		case res = <-done:
			cancel()
		case next := <-h.trigger:
			cancel()
			<-done
			h.mu.Lock()
			h.status.Superseded++
			h.mu.Unlock()
			h.logger.Info("reload superseded in-flight timeline", "origin", next)
			origin = next
			continue
		case <-ctx.Done():
			cancel()
			<-done
			return nil
		}

		if res.err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Only a cancelled request returns an error, and only this loop cancels.
			h.logger.Error("timeline request failed", "origin", origin, "error", res.err)
			res.tl = timeline.Timeline{Policy: timeline.Never()}
		}

		policy := h.apply(res.tl, origin)

		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		if policy.Kind == timeline.PolicyAfter {
			timer = time.NewTimer(max(policy.Date.Sub(h.now()), 0))
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil
		case <-fire:
			origin = OriginSchedule
		case origin = <-h.trigger:
			stopTimer(timer)
		}
	}
}

// apply updates the display and status from tl. An empty timeline leaves the
// current entry on display.
func (h *Host) apply(tl timeline.Timeline, origin string) timeline.Policy {
	now := h.now()
	policy := tl.Policy

	h.mu.Lock()
	if e, ok := pickEntry(tl.Entries, now); ok {
		h.current = e
		h.hasCurrent = true
	}
	h.status.Policy = &policy
	h.status.LastRun = now
	h.status.LastOrigin = origin
	h.status.Runs++
	entry := h.current
	h.mu.Unlock()

	h.logger.Info("timeline applied", "origin", origin, "entries", len(tl.Entries), "policy", policy.String())

	if h.onEntry != nil {
		h.onEntry(entry, policy)
	}
	return policy
}

// pickEntry returns the latest entry that is not in the future, or the
// earliest one if all are.
func pickEntry(entries []timeline.Entry, now time.Time) (timeline.Entry, bool) {
	if len(entries) == 0 {
		return timeline.Entry{}, false
	}
	best := -1
	for i, e := range entries {
		if e.Date.After(now) {
			continue
		}
		if best < 0 || !e.Date.Before(entries[best].Date) {
			best = i
		}
	}
	if best < 0 {
		best = 0
		for i, e := range entries {
			if e.Date.Before(entries[best].Date) {
				best = i
			}
		}
	}
	return entries[best], true
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
