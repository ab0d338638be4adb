package exlog

import (
	"context"
	"errors"

	"github.com/vietddude/exlog/internal/capture"
	"github.com/vietddude/exlog/internal/core/domain"
)

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("logger closed")

// Capture snapshots err on the calling goroutine.
func (l *Logger) Capture(err error, opts ...capture.Option) *domain.CapturedException {
	return l.capturer.Capture(err, append(opts, capture.Skip(1))...)
}

// Capturer returns the capturer used by the logger.
func (l *Logger) Capturer() *capture.Capturer {
	return l.capturer
}

// Wrap runs fn. If fn fails or panics the error is captured and written, and the returned
// identifier refers to it. The error from fn is always returned; a panic comes back as a
// *capture.PanicError.
func (l *Logger) Wrap(
	ctx context.Context,
	fn func(context.Context) error,
	opts ...capture.Option,
) (domain.LogIdentifier, bool, error) {
	err := run(ctx, fn)
	if err == nil {
		return domain.LogIdentifier{}, false, nil
	}
	c := l.capturer.Capture(err, append(opts, capture.Skip(1))...)
	id, ok := l.Write(ctx, c)
	return id, ok, err
}

func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = capture.FromPanic(v)
		}
	}()
	return fn(ctx)
}

// Report captures err now and writes it in the background. The write outlives ctx's
// cancellation; Close waits for pending writes.
func (l *Logger) Report(ctx context.Context, err error, opts ...capture.Option) *domain.CapturedException {
	c := l.capturer.Capture(err, append(opts, capture.Skip(1))...)
	if c == nil {
		return nil
	}

	l.closeMu.RLock()
	defer l.closeMu.RUnlock()
	if l.closed {
		l.reporter.Report(ctx, c)
		return c
	}

	ctx = context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.Write(ctx, c)
	}()
	return c
}

// Close waits for background writes to finish or for ctx to expire. It does not close the
// store or the reporter.
func (l *Logger) Close(ctx context.Context) error {
	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
