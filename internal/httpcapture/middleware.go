package httpcapture

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/exlog/internal/capture"
	"github.com/vietddude/exlog/internal/core/domain"
)

// Logger is the part of exlog.Logger the middleware needs.
type Logger interface {
	Capture(err error, opts ...capture.Option) *domain.CapturedException
	Write(ctx context.Context, c *domain.CapturedException) (domain.LogIdentifier, bool)
}

// ErrorResponse is the body written for a recovered request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Reference string `json:"reference,omitempty"`
}

// Recoverer returns middleware that recovers panics, writes them with the request attached
// and answers 500 with the support reference. Writes are bounded by timeout.
func Recoverer(l Logger, timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				c := l.Capture(capture.FromPanic(v), capture.Request(FromRequest(r)))
				ReportError(w, r, l, c, timeout)
			}()
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

// HandleError captures err for r, writes it and answers 500. Use it from handlers that
// return errors instead of panicking.
func HandleError(w http.ResponseWriter, r *http.Request, l Logger, err error, timeout time.Duration) {
	if err == nil {
		return
	}
	c := l.Capture(err, capture.Request(FromRequest(r)))
	ReportError(w, r, l, c, timeout)
}

// ReportError writes c and answers 500 with its reference when the write succeeded.
func ReportError(w http.ResponseWriter, r *http.Request, l Logger, c *domain.CapturedException, timeout time.Duration) {
	ctx := context.WithoutCancel(r.Context())
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp := ErrorResponse{Error: http.StatusText(http.StatusInternalServerError)}
	if id, ok := l.Write(ctx, c); ok {
		resp.Reference = id.ShortForm()
	} else if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		slog.Warn("exception write timed out", "method", r.Method, "path", r.URL.Path)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(resp)
}
