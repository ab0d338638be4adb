package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorClass determines how the write path handles a store error.
type ErrorClass int

const (
	// ClassWrite is an ordinary statement failure: roll back and report.
	ClassWrite ErrorClass = iota
	// ClassConnectivity means the store is unreachable: also trip the breaker.
	ClassConnectivity
	// ClassCanceled means the caller gave up; nothing is wrong with the store.
	ClassCanceled
	// ClassConflict is a serialization failure or deadlock; the write can be retried.
	ClassConflict
)

func (c ErrorClass) String() string {
	switch c {
	case ClassConnectivity:
		return "connectivity"
	case ClassCanceled:
		return "canceled"
	case ClassConflict:
		return "conflict"
	default:
		return "write"
	}
}

// Classify determines the class of a store error.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassWrite
	}

	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && isConflictCode(pgErr.Code) {
		return ClassConflict
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && isConflictCode(string(pqErr.Code)) {
		return ClassConflict
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, ErrClosed) {
		return ClassConnectivity
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassConnectivity
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassConnectivity
	}

	// Drivers do not always keep the cause in the chain.
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "could not serialize access") ||
		strings.Contains(s, "deadlock detected") ||
		strings.Contains(s, "database is locked") {
		return ClassConflict
	}
	if strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "no such host") ||
		strings.Contains(s, "bad connection") ||
		strings.Contains(s, "conn closed") ||
		strings.Contains(s, "database is closed") ||
		strings.Contains(s, "unable to open database file") {
		return ClassConnectivity
	}

	return ClassWrite
}

// serialization_failure and deadlock_detected.
func isConflictCode(code string) bool {
	return code == "40001" || code == "40P01"
}
