package capture

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/vietddude/exlog/internal/core/domain"
)

const maxFrames = 64

// stackTracer is implemented by errors that recorded where they were created.
type stackTracer interface {
	Callers() []uintptr
}

// traced attaches call-site frames to an error without changing its message.
type traced struct {
	err error
	pcs []uintptr
}

// Trace records the caller's stack on err so the capture uses the frames where the error
// originated instead of where it was caught.
func Trace(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(stackTracer); ok {
		return err
	}
	return &traced{err: err, pcs: callers(3)}
}

func (t *traced) Error() string      { return t.err.Error() }
func (t *traced) Unwrap() error      { return t.err }
func (t *traced) Callers() []uintptr { return t.pcs }

func (t *traced) Format(s fmt.State, verb rune) {
	fmt.Fprintf(s, fmt.FormatString(s, verb), t.err)
}

func callers(skip int) []uintptr {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip, pcs)
	return pcs[:n]
}

// trimRuntime drops leading runtime frames such as gopanic and sigpanic.
func trimRuntime(pcs []uintptr) []uintptr {
	for len(pcs) > 0 {
		f, _ := runtime.CallersFrames(pcs[:1]).Next()
		if !strings.HasPrefix(f.Function, "runtime.") {
			break
		}
		pcs = pcs[1:]
	}
	return pcs
}

// formatStack renders frames one per line as "   at pkg.Func in file:line".
func formatStack(pcs []uintptr) string {
	if len(pcs) == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(pcs)
	for {
		f, more := frames.Next()
		if f.Function != "" {
			fmt.Fprintf(&b, "   at %s in %s:%d\n", f.Function, f.File, f.Line)
		}
		if !more {
			break
		}
	}
	return b.String()
}

// targetSite describes the first frame of pcs.
func targetSite(pcs []uintptr) domain.Optional[domain.TargetSite] {
	if len(pcs) == 0 {
		return domain.None[domain.TargetSite]()
	}
	f, _ := runtime.CallersFrames(pcs).Next()
	if f.Function == "" {
		return domain.None[domain.TargetSite]()
	}
	pkg, typ, method := splitFunction(f.Function)
	offset := 0
	if f.Func != nil {
		offset = int(f.PC - f.Func.Entry())
	} else if f.Entry != 0 {
		offset = int(f.PC - f.Entry)
	}
	return domain.Some(domain.TargetSite{
		AssemblyName: pkg,
		TypeName:     typ,
		MethodName:   method,
		ILOffset:     offset,
		FileName:     f.File,
		FileLine:     f.Line,
	})
}

// splitFunction splits "github.com/a/b.(*T).M" into package path, receiver type and method.
func splitFunction(fn string) (pkg, typ, method string) {
	slash := strings.LastIndex(fn, "/")
	dot := strings.Index(fn[slash+1:], ".")
	if dot < 0 {
		return "", "", fn
	}
	dot += slash + 1
	pkg = fn[:dot]
	rest := fn[dot+1:]

	if i := strings.LastIndex(rest, "."); i >= 0 {
		typ, method = rest[:i], rest[i+1:]
		typ = strings.TrimSuffix(strings.TrimPrefix(typ, "("), ")")
		return pkg, typ, method
	}
	return pkg, "", rest
}

// goroutineID parses the id from the header line of runtime.Stack.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	line := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(line, ' '); i > 0 {
		line = line[:i]
	}
	id, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
