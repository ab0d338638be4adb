package failover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vietddude/exlog/internal/infra/redis"
)

// Entry is one failover report. Kind is "exception" or "symptom".
type Entry struct {
	Time        time.Time `json:"time"`
	Application string    `json:"application"`
	Environment string    `json:"environment,omitempty"`
	Kind        string    `json:"kind"`
	Text        string    `json:"text"`
}

// Sink receives failover reports.
type Sink interface {
	// Name labels metrics and logs.
	Name() string

	// Write persists the entry.
	Write(ctx context.Context, e Entry) error

	// Close releases resources held by the sink.
	Close() error
}

// writerSink writes reports in human-readable form to an io.Writer.
type writerSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink that writes to w. Writes are serialized so reports never
// interleave.
func NewWriterSink(w io.Writer) Sink {
	return &writerSink{w: w}
}

func (s *writerSink) Name() string { return "writer" }

func (s *writerSink) Write(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintf(s.w, "[EXLOG] %s FAILOVER %s (%s)\n%s\n",
		e.Time.UTC().Format(time.RFC3339Nano), e.Application, e.Kind, e.Text)
	return err
}

func (s *writerSink) Close() error { return nil }

// RedisSink appends reports as JSON to a bounded Redis list.
type RedisSink struct {
	client     *redis.Client
	key        string
	maxEntries int
}

// NewRedisSink creates a sink writing to the list at key, keeping at most maxEntries.
func NewRedisSink(client *redis.Client, key string, maxEntries int) *RedisSink {
	return &RedisSink{client: client, key: key, maxEntries: maxEntries}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Write(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal failover entry: %w", err)
	}
	return s.client.PushBounded(ctx, s.key, data, s.maxEntries)
}

// Recent returns the newest n entries.
func (s *RedisSink) Recent(ctx context.Context, n int) ([]Entry, error) {
	raw, err := s.client.Recent(ctx, s.key, n)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Len returns how many entries the list holds.
func (s *RedisSink) Len(ctx context.Context) (int64, error) {
	return s.client.Len(ctx, s.key)
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
