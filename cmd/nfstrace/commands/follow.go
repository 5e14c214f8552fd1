package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfstrace/nfstrace/internal/logger"
	"github.com/nfstrace/nfstrace/pkg/metrics"
	"github.com/nfstrace/nfstrace/pkg/search"
	"github.com/nfstrace/nfstrace/pkg/trace"
)

var (
	followFrom      int64
	followStopsOnly bool
	followVerbose   bool
)

var followCmd = &cobra.Command{
	Use:   "follow <trace.pcap>",
	Short: "Decode a capture that is still being written",
	Long: `Walk a capture file and keep waiting for new frames instead of
stopping at end of file, the way "tail -f" follows a log.

Following stops on interrupt, or after follow.idle_timeout without
file growth when that is configured. When metrics are enabled, a
Prometheus endpoint serves live pipeline counters while following.

Examples:
  # Follow a capture tcpdump is still writing
  nfstrace follow /var/tmp/nfs.pcap

  # Resume a previous walk, printing only decode failures
  nfstrace follow --from 93040 --stops-only /var/tmp/nfs.pcap`,
	Args: cobra.ExactArgs(1),
	RunE: runFollow,
}

func init() {
	followCmd.Flags().Int64Var(&followFrom, "from", 0, "Resume after the record at this position")
	followCmd.Flags().BoolVar(&followStopsOnly, "stops-only", false, "Print only records where decoding stopped early")
	followCmd.Flags().BoolVarP(&followVerbose, "verbose", "v", false, "Print decoded RPC and NFS detail per record")
}

func runFollow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, cfg.Metrics.Port)
	}

	it, err := search.Open(args[0], decoderConfig(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()

	if followFrom > 0 {
		if err := it.Resume(trace.Position(followFrom)); err != nil {
			return fmt.Errorf("resume at %d: %w", followFrom, err)
		}
	}

	logger.Info("following capture",
		logger.KeyTrace, args[0],
		"poll_interval", cfg.Follow.PollInterval,
		"idle_timeout", cfg.Follow.IdleTimeout)

	for {
		rec, err := it.Next()
		switch {
		case err == nil:
			if followStopsOnly && rec.Stop.Ok() {
				continue
			}
			printRecord(rec, followVerbose)

		case errors.Is(err, io.EOF), errors.Is(err, trace.ErrAwaitingData):
			if err := awaitGrowth(ctx, it, cfg.Follow.PollInterval, cfg.Follow.IdleTimeout); err != nil {
				reportPending(it)
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return err
			}

		default:
			return err
		}
	}
}

// awaitGrowth blocks until the capture grows. It returns context.Canceled on
// interrupt and context.DeadlineExceeded when the idle timeout elapses.
func awaitGrowth(ctx context.Context, it *search.Iterator, poll, idle time.Duration) error {
	waitCtx := ctx
	if idle > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, idle)
		defer cancel()
	}

	err := it.Reader().Await(waitCtx, poll)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		logger.Info("capture idle, stopping", "idle_timeout", idle)
		return context.DeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("interrupted, stopping")
		return context.Canceled
	}
	return err
}

// reportPending logs calls still waiting for a reply when following stops.
func reportPending(it *search.Iterator) {
	unanswered := it.Decoder().UnansweredCalls()
	if len(unanswered) == 0 {
		return
	}
	logger.Info("calls without replies at stop", logger.KeySize, len(unanswered))
	for _, call := range unanswered {
		logger.Debug("unanswered call",
			logger.KeyFlow, call.Key.Conn,
			logger.KeyXID, call.Key.XID,
			logger.KeyProgram, call.Program,
			logger.KeyFrame, call.Frame)
	}
}

// startMetricsServer serves the Prometheus endpoint for the duration of the
// follow. Serve errors are logged, not fatal: losing metrics should not stop
// the decode.
func startMetricsServer(ctx context.Context, port int) {
	metrics.InitRegistry()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics endpoint listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", logger.KeyError, err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
