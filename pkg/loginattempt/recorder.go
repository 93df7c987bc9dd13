package loginattempt

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Attempt describes one authentication attempt as seen by the caller.
type Attempt struct {
	Identifier    string
	IdentityID    *uuid.UUID
	Success       bool
	Reason        string
	SourceAddress string
}

// Recorder writes attempts to a Sink when recording is enabled. Write
// failures are logged and never change the outcome of the attempt.
type Recorder struct {
	sink    Sink
	enabled bool
	now     func() time.Time
}

type Option func(*Recorder)

func WithEnabled(enabled bool) Option {
	return func(r *Recorder) {
		r.enabled = enabled
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{sink: sink, enabled: true, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Enabled() bool {
	return r.enabled
}

// Record writes a for audit. The write is not aborted by cancellation of ctx.
func (r *Recorder) Record(ctx context.Context, a Attempt) {
	if !r.enabled || r.sink == nil {
		return
	}

	status := StatusFailure
	if a.Success {
		status = StatusSuccess
	}
	rec := Record{
		ID:            uuid.New(),
		Identifier:    a.Identifier,
		IdentityID:    a.IdentityID,
		Status:        status,
		Reason:        a.Reason,
		SourceAddress: a.SourceAddress,
		CreatedAt:     r.now().UTC(),
	}
	if err := r.sink.Write(context.WithoutCancel(ctx), rec); err != nil {
		slog.Error("Failed to record login attempt", "identifier", a.Identifier, "status", status, "error", err)
	}
}
