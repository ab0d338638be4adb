package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/exlog/internal/control"
	"github.com/vietddude/exlog/internal/exlog"
)

var (
	benchCount       int
	benchConcurrency int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Write the same two errors repeatedly and report elapsed time",
	Run:   runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchCount, "count", 1000, "writes per error")
	benchCmd.Flags().IntVar(&benchConcurrency, "concurrency", 1, "concurrent writers")
	rootCmd.AddCommand(benchCmd)
}

type benchResult struct {
	name    string
	written int64
	failed  int64
	elapsed time.Duration
}

func runBench(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize exlog", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = app.Stop(ctx)
	}()

	tests := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"Test1", func(context.Context) error { return errors.New("Test1") }},
		{"Test2", func(context.Context) error { return errors.New("Test2") }},
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TEST\tWRITTEN\tFAILED\tELAPSED")
	for _, tt := range tests {
		r := bench(ctx, app.Logger(), tt.name, tt.fn, benchCount, benchConcurrency)
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d ms\n", r.name, r.written, r.failed, r.elapsed.Milliseconds())
	}
	_ = w.Flush()
}

func bench(
	ctx context.Context,
	l *exlog.Logger,
	name string,
	fn func(context.Context) error,
	count, concurrency int,
) benchResult {
	var written, failed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	start := time.Now()
	for range count {
		g.Go(func() error {
			if _, ok, _ := l.Wrap(ctx, fn); ok {
				written.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return benchResult{
		name:    name,
		written: written.Load(),
		failed:  failed.Load(),
		elapsed: time.Since(start),
	}
}
