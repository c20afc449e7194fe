package store

import (
	"context"
	"log/slog"

	"github.com/ppiankov/factpane/internal/source"
	"github.com/ppiankov/factpane/internal/timeline"
)

const recordTimeout = 2 * busyTimeout

// Recorder adapts a Store into a timeline.Observer. Write failures are
// logged and otherwise ignored. It runs on the callback path, so a locked
// database delays a callback by roughly busyTimeout.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

func NewRecorder(s *Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: s, logger: logger}
}

func (r *Recorder) ObserveFetch(rec timeline.FetchRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if _, err := r.store.Record(ctx, RunInputFromFetch(rec)); err != nil && r.logger != nil {
		r.logger.Warn("record refresh run", "callback", rec.Callback, "error", err)
	}
}

// RunInputFromFetch converts a fetch record into a refresh log row.
func RunInputFromFetch(rec timeline.FetchRecord) RunInput {
	in := RunInput{
		Callback:   rec.Callback,
		Source:     rec.Source,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		TextCount:  rec.Texts,
	}

	switch {
	case rec.Cancelled:
		in.Outcome = OutcomeCancelled
	case rec.Err != nil:
		in.Outcome = OutcomeFailure
		kind := source.KindOf(rec.Err)
		in.ErrorKind = kind.String()
		// rec.Err may quote the response body or command stderr.
		in.ErrorMessage = kind.Summary()
	default:
		in.Outcome = OutcomeSuccess
	}

	if rec.Policy != nil {
		in.Policy = rec.Policy.Kind.String()
		if rec.Policy.Kind == timeline.PolicyAfter {
			in.NextRefreshAt = rec.Policy.Date
		}
	}
	return in
}
