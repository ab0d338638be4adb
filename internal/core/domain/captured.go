package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// CapturedException is an immutable snapshot of an error and the context of the goroutine
// that caught it. Inner errors form a singly linked chain built at capture time.
type CapturedException struct {
	TypeName     string
	AssemblyName string
	Message      string
	StackTrace   string
	// Text is the full rendering of the error used by failover output.
	Text string

	TargetSite Optional[TargetSite]

	SequenceNumber int64
	LoggedAt       time.Time
	GoroutineID    int64

	IsHandled     bool
	CorrelationID Optional[uuid.UUID]
	Request       Optional[WebRequest]
	Hosting       Optional[Hosting]

	Inner *CapturedException
}

// ExceptionID is the species digest of this node.
func (c *CapturedException) ExceptionID() Digest {
	if ts, ok := c.TargetSite.Get(); ok {
		return HashParts(c.AssemblyName, c.TypeName, c.StackTrace, ts.ID().Hex(-1))
	}
	return HashParts(c.AssemblyName, c.TypeName, c.StackTrace)
}

// Chain returns the node followed by its inner errors, outermost first.
func (c *CapturedException) Chain() []*CapturedException {
	var out []*CapturedException
	for n := c; n != nil; n = n.Inner {
		out = append(out, n)
	}
	return out
}

// TargetSite is the frame an error was raised from.
type TargetSite struct {
	AssemblyName string
	TypeName     string
	MethodName   string
	ILOffset     int
	FileName     string
	FileLine     int
	FileColumn   int
}

// ID returns the target site digest.
func (t TargetSite) ID() Digest {
	return HashParts(
		t.AssemblyName,
		t.TypeName,
		t.MethodName,
		strconv.Itoa(t.ILOffset),
		t.FileName,
		strconv.Itoa(t.FileLine),
		strconv.Itoa(t.FileColumn),
	)
}

// Application identifies the process writing exceptions.
type Application struct {
	MachineName     string
	ApplicationName string
	EnvironmentName string
	ProcessPath     string
	// Identity is the OS user the process runs as. Not part of the digest.
	Identity string
}

// ID returns the application digest.
func (a Application) ID() Digest {
	return HashParts(a.MachineName, a.ApplicationName, a.EnvironmentName, a.ProcessPath)
}
