package capture

import (
	"fmt"
	"runtime/debug"
)

// PanicError carries a recovered panic value as an error.
type PanicError struct {
	Value any
	Stack []byte
	pcs   []uintptr
}

// FromPanic converts a recovered value into an error. Call it directly inside the deferred
// function that recovered so the frames point at the panic site.
func FromPanic(v any) error {
	return &PanicError{Value: v, Stack: debug.Stack(), pcs: trimRuntime(callers(4))}
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Unwrap exposes a panicked error as the inner error.
func (p *PanicError) Unwrap() error {
	err, _ := p.Value.(error)
	return err
}

func (p *PanicError) Callers() []uintptr {
	return p.pcs
}
