package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorClass
	}{
		{nil, ClassWrite},
		{errors.New(`duplicate key value violates unique constraint "ex_instance_pkey"`), ClassWrite},
		{errors.New("near \"SELEC\": syntax error"), ClassWrite},
		{fmt.Errorf("insert instance: %w", context.Canceled), ClassCanceled},
		{fmt.Errorf("open: %w", driver.ErrBadConn), ClassConnectivity},
		{fmt.Errorf("dial: %w", syscall.ECONNREFUSED), ClassConnectivity},
		{&net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}, ClassConnectivity},
		{&net.DNSError{Err: "no such host", Name: "db.invalid"}, ClassConnectivity},
		{errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), ClassConnectivity},
		{errors.New("write: broken pipe"), ClassConnectivity},
		{errors.New("sql: database is closed"), ClassConnectivity},
		{fmt.Errorf("begin: %w", ErrClosed), ClassConnectivity},
		{fmt.Errorf("upsert: %w", &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}), ClassConflict},
		{&pgconn.PgError{Code: "23505"}, ClassWrite},
		{&pq.Error{Code: "40P01"}, ClassConflict},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), ClassConflict},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.expect {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}
