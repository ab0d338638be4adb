// Package capture builds CapturedException snapshots on the goroutine that caught an error.
package capture

import (
	"errors"
	"fmt"
	"reflect"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/vietddude/exlog/internal/core/domain"
)

// MaxMessageLen bounds the stored message, in runes.
const MaxMessageLen = 256

// Option sets caller-supplied fields on a capture.
type Option func(*options)

type options struct {
	handled     bool
	correlation domain.Optional[uuid.UUID]
	request     domain.Optional[domain.WebRequest]
	skip        int
}

// Handled marks the error as explicitly handled by the application.
func Handled() Option {
	return func(o *options) { o.handled = true }
}

// Correlation ties several reports together.
func Correlation(id uuid.UUID) Option {
	return func(o *options) { o.correlation = domain.Some(id) }
}

// Request attaches the web request being served.
func Request(r domain.WebRequest) Option {
	return func(o *options) { o.request = domain.Some(r) }
}

// Skip drops n additional frames from the capture-site stack.
func Skip(n int) Option {
	return func(o *options) { o.skip += n }
}

// Capturer snapshots errors. It is safe for concurrent use.
type Capturer struct {
	seq     *Sequence
	hosting domain.Optional[domain.Hosting]
	now     func() time.Time
}

// NewCapturer creates a capturer drawing sequence numbers from seq.
func NewCapturer(seq *Sequence, hosting domain.Optional[domain.Hosting]) *Capturer {
	return &Capturer{seq: seq, hosting: hosting, now: time.Now}
}

// Sequence exposes the counter the capturer draws from.
func (c *Capturer) Sequence() *Sequence {
	return c.seq
}

// Capture snapshots err and its inner chain. A nil err yields nil.
func (c *Capturer) Capture(err error, opts ...Option) *domain.CapturedException {
	if err == nil {
		return nil
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// Frames of the catching goroutine; used when the root error carries none.
	site := callers(3 + o.skip)
	gid := goroutineID()

	var root, tail *domain.CapturedException
	for cur := err; cur != nil; {
		node, next := c.node(cur, gid, o)
		if root == nil {
			if node.StackTrace == "" {
				node.StackTrace = formatStack(site)
				node.TargetSite = targetSite(site)
			}
			root = node
		} else {
			tail.Inner = node
		}
		tail = node
		cur = next
	}
	return root
}

// node builds one chain element and returns the error to continue with.
func (c *Capturer) node(err error, gid int64, o options) (*domain.CapturedException, error) {
	var pcs []uintptr
	// Stack-only wrappers contribute frames, not chain nodes.
	for {
		t, ok := err.(*traced)
		if !ok {
			break
		}
		if pcs == nil {
			pcs = t.pcs
		}
		err = t.err
	}
	if pcs == nil {
		if st, ok := err.(stackTracer); ok {
			pcs = st.Callers()
		}
	}

	n := &domain.CapturedException{
		TypeName:       typeName(err),
		AssemblyName:   packagePath(err),
		Message:        truncate(err.Error(), MaxMessageLen),
		Text:           fmt.Sprintf("%s: %s", typeName(err), err.Error()),
		SequenceNumber: c.seq.Next(),
		LoggedAt:       c.now().UTC(),
		GoroutineID:    gid,
		IsHandled:      o.handled,
		CorrelationID:  o.correlation,
		Request:        o.request,
		Hosting:        c.hosting,
	}
	if len(pcs) > 0 {
		n.StackTrace = formatStack(pcs)
		n.TargetSite = targetSite(pcs)
	}
	return n, unwrapFirst(err)
}

func unwrapFirst(err error) error {
	if next := errors.Unwrap(err); next != nil {
		return next
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range multi.Unwrap() {
			if e != nil {
				return e
			}
		}
	}
	return nil
}

func typeName(err error) string {
	return fmt.Sprintf("%T", err)
}

func packagePath(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.PkgPath()
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
