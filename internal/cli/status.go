package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/exlog/internal/control"
	"github.com/vietddude/exlog/internal/failover"
	"github.com/vietddude/exlog/internal/health"
	redisclient "github.com/vietddude/exlog/internal/infra/redis"
)

const statusTimeout = 5 * time.Second

var (
	statusServer string
	statusRecent int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store health, table sizes and recent failover reports",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", "", "base URL of a running exlog server to read breaker state from")
	statusCmd.Flags().IntVar(&statusRecent, "recent", 5, "number of recent failover reports to show")
	rootCmd.AddCommand(statusCmd)
}

var statusTables = []string{
	"ex_exception",
	"ex_instance",
	"ex_target_site",
	"ex_application",
	"ex_web_application",
	"ex_url_query",
	"ex_context_web",
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	backend, err := control.OpenBackend(cfg.Store)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = backend.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tDETAIL")

	if err := backend.Health(ctx); err != nil {
		_, _ = fmt.Fprintf(w, "store\t%s\t%v\n", health.StatusCritical, err)
	} else {
		_, _ = fmt.Fprintf(w, "store\t%s\t%s\n", health.StatusHealthy, cfg.Store.Driver)
		if version, err := backend.SchemaVersion(ctx); err == nil {
			_, _ = fmt.Fprintf(w, "schema\tversion %d\t\n", version)
		}
		if backend.SQL != nil {
			for _, table := range statusTables {
				var n int64
				if err := backend.SQL.DB().GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
					continue
				}
				_, _ = fmt.Fprintf(w, "%s\t%d rows\t\n", table, n)
			}
		}
	}

	if statusServer != "" {
		report, err := fetchHealth(ctx, statusServer)
		if err != nil {
			_, _ = fmt.Fprintf(w, "server\tunreachable\t%v\n", err)
		} else {
			detail := ""
			if report.RetryAt != nil {
				detail = "retry at " + report.RetryAt.Format(time.RFC3339)
			}
			_, _ = fmt.Fprintf(w, "server\t%s\t\n", report.SystemStatus)
			_, _ = fmt.Fprintf(w, "breaker\t%s\t%s\n", report.Breaker, detail)
		}
	}
	_ = w.Flush()

	if cfg.Failover.Redis.URL != "" {
		printRecentFailover(ctx, cfg.Failover.Redis.Config, cfg.Failover.Redis.Key)
	}
}

func fetchHealth(ctx context.Context, base string) (*health.HealthReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/health/detailed", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var report health.HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode health report: %w", err)
	}
	return &report, nil
}

func printRecentFailover(ctx context.Context, cfg redisclient.Config, key string) {
	client, err := redisclient.NewClient(cfg)
	if err != nil {
		slog.Warn("Failed to init Redis", "error", err)
		return
	}
	sink := failover.NewRedisSink(client, key, redisclient.DefaultMaxEntries)
	defer func() {
		_ = sink.Close()
	}()

	total, err := sink.Len(ctx)
	if err != nil {
		slog.Warn("Failed to read failover list", "error", err)
		return
	}
	entries, err := sink.Recent(ctx, statusRecent)
	if err != nil {
		slog.Warn("Failed to read failover list", "error", err)
		return
	}

	fmt.Printf("\nRecent failover reports (%s, %d stored):\n", key, total)
	if len(entries) == 0 {
		fmt.Println("  none")
		return
	}
	for _, e := range entries {
		first, _, _ := strings.Cut(e.Text, "\n")
		fmt.Printf("  %s  %-8s %s/%s  %s\n", e.Time.Format(time.RFC3339), e.Kind, e.Application, e.Environment, first)
	}
}
