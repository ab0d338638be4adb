package domain

import (
	"time"

	"github.com/google/uuid"
)

// Instance is one occurrence row of an exception species.
type Instance struct {
	ExceptionID         Digest
	ApplicationID       Digest
	LoggedAt            time.Time
	SequenceNumber      int64
	IsHandled           bool
	ApplicationIdentity string
	ParentID            Optional[int64]
	CorrelationID       Optional[uuid.UUID]
	GoroutineID         int64
	Message             string
}

// Species is the deduplicated exception row.
type Species struct {
	ID           Digest
	AssemblyName string
	TypeName     string
	StackTrace   string
	TargetSiteID Optional[Digest]
}

// WebContext links an instance to the request it happened in.
type WebContext struct {
	InstanceID          int64
	WebApplicationID    Digest
	AuthenticatedUser   Optional[string]
	HTTPMethod          string
	RequestURLQueryID   Digest
	ReferrerURLQueryID  Optional[Digest]
	HeadersCollectionID Optional[Digest]
}
