// Package failover reports errors that could not be written to the store.
// Reporting never fails: every sink error is swallowed.
package failover

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/exlog/internal/core/domain"
	"github.com/vietddude/exlog/internal/metrics"
)

// sinkTimeout bounds each secondary sink write.
const sinkTimeout = 2 * time.Second

// Reporter writes failover reports to a primary sink and any number of secondary sinks.
type Reporter struct {
	application string
	environment string
	primary     Sink
	secondary   []Sink
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithPrimary replaces the primary sink. A nil sink disables the primary text output.
func WithPrimary(s Sink) Option {
	return func(r *Reporter) { r.primary = s }
}

// WithSecondary adds a best-effort sink.
func WithSecondary(s Sink) Option {
	return func(r *Reporter) {
		if s != nil {
			r.secondary = append(r.secondary, s)
		}
	}
}

// WithLogger sets the structured logger used for the report record.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) { r.logger = l }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// NewReporter creates a reporter. Without WithPrimary, reports are only logged through slog.
func NewReporter(application, environment string, opts ...Option) *Reporter {
	r := &Reporter{
		application: application,
		environment: environment,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report emits a captured error that could not be stored.
func (r *Reporter) Report(ctx context.Context, actual *domain.CapturedException) {
	if actual == nil {
		return
	}
	r.emit(ctx, "exception", Format(actual), actual)
}

// ReportSymptom emits the error being logged together with the failure that stopped it.
func (r *Reporter) ReportSymptom(ctx context.Context, symptom, actual *domain.CapturedException) {
	if symptom == nil {
		r.Report(ctx, actual)
		return
	}
	r.emit(ctx, "symptom", FormatSymptom(symptom, actual), actual)
}

func (r *Reporter) emit(ctx context.Context, kind, text string, actual *domain.CapturedException) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("failover report panicked", "panic", v)
		}
	}()

	e := Entry{
		Time:        r.now(),
		Application: r.application,
		Environment: r.environment,
		Kind:        kind,
		Text:        text,
	}

	attrs := []any{"kind", kind, "application", r.application}
	if actual != nil {
		attrs = append(attrs, "type", actual.TypeName, "message", actual.Message)
	}
	r.logger.Error("exception failover", attrs...)

	// A failed write is often caused by the caller's deadline; the sinks still get their turn.
	ctx = context.WithoutCancel(ctx)

	if r.primary != nil {
		r.write(ctx, r.primary, e)
	}
	for _, s := range r.secondary {
		r.write(ctx, s, e)
	}
}

func (r *Reporter) write(ctx context.Context, s Sink, e Entry) {
	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	if err := s.Write(ctx, e); err != nil {
		metrics.FailoverReports.WithLabelValues(s.Name(), "error").Inc()
		r.logger.Debug("failover sink write failed", "sink", s.Name(), "error", err)
		return
	}
	metrics.FailoverReports.WithLabelValues(s.Name(), "ok").Inc()
}

// Close closes every sink.
func (r *Reporter) Close() error {
	if r.primary != nil {
		_ = r.primary.Close()
	}
	for _, s := range r.secondary {
		_ = s.Close()
	}
	return nil
}
