// serve.go - the long-running server subcommand: diagnostics, metrics,
// host resource gauges, and optional historical snapshotting wrapped
// around a lazily-populated PoolMap.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/id-pointer/id-pointer-pool-go/internal/diagnostics"
	"github.com/id-pointer/id-pointer-pool-go/internal/hostmetrics"
	"github.com/id-pointer/id-pointer-pool-go/internal/logging"
	"github.com/id-pointer/id-pointer-pool-go/internal/metrics"
	"github.com/id-pointer/id-pointer-pool-go/internal/pool"
	"github.com/id-pointer/id-pointer-pool-go/internal/snapshot"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pool map alongside its diagnostics, metrics, and snapshot surfaces",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// daemon holds the shared context and WaitGroup for the goroutines serve
// starts; runServe cancels the context and waits on the group after
// stopping each component at shutdown.
type daemon struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newDaemon() *daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &daemon{ctx: ctx, cancel: cancel}
}

func runServe(cmd *cobra.Command, args []string) error {
	if verbose, _ := rootCmd.PersistentFlags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	poolDefaults, err := cfg.Pool.ToPoolConfig()
	if err != nil {
		return fmt.Errorf("invalid pool defaults: %w", err)
	}

	latency := metrics.NewLatencyRecorder()
	baseConnector := pool.NewTCPConnector(cfg.Pool.DialTimeout)
	connector := metrics.NewInstrumentedConnector(baseConnector, latency)

	hub := diagnostics.NewHub(diagnostics.Config{})
	handler := metrics.NewHoldTimeHandler(diagnostics.NewBroadcastHandler(hub, pool.NoopHandler{}), latency)

	factory := func(endpoint pool.Endpoint) (*pool.FixedPool, error) {
		return pool.NewFixedPool(endpoint, connector, poolDefaults,
			pool.WithHandler(handler),
			pool.WithLogger(logger),
		)
	}

	poolMap := pool.NewPoolMap(factory, cfg.PoolMap.ToPoolMapConfig(), logger)

	d := newDaemon()
	hub.Start(d.ctx)
	poolMap.StartSweeper(d.ctx)

	collector := metrics.NewCollector(cfg.Metrics, poolMap, logger)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		collector.Start(15 * time.Second)
	}()

	metricsSrv := metrics.NewServer(cfg.Metrics, logger)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := metricsSrv.Start(); err != nil {
			logger.Errorw("metrics server exited", "error", err)
		}
	}()

	diagSrv := diagnostics.NewServer(cfg.Diagnostics, poolMap, poolMap, hub, logger)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := diagSrv.Start(); err != nil {
			logger.Errorw("diagnostics server exited", "error", err)
		}
	}()

	host := hostmetrics.New(logger)
	stopHost := host.Start(10 * time.Second)

	var snapStore *snapshot.Store
	if cfg.Snapshot.Enabled {
		snapStore, err = snapshot.Open(cfg.Snapshot.Path, cfg.Snapshot.Retain)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			runSnapshotLoop(d.ctx, snapStore, poolMap, cfg.Snapshot.Interval, logger)
		}()
	}

	logger.Infow("idpoolctl serve started",
		"diagnostics", cfg.Diagnostics.Listen, "metrics", cfg.Metrics.Listen)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Infow("received shutdown signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	_ = metricsSrv.Stop(shutdownCtx)
	_ = diagSrv.Stop(shutdownCtx)
	collector.Stop()
	stopHost()
	hub.Stop()
	poolMap.Stop()
	poolMap.CloseAll()
	if snapStore != nil {
		_ = snapStore.Close()
	}

	d.cancel()
	d.wg.Wait()
	logger.Info("idpoolctl serve stopped")
	return nil
}

func runSnapshotLoop(ctx context.Context, store *snapshot.Store, source metrics.Source, interval time.Duration, logger *zap.SugaredLogger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := store.Store(source.Snapshot()); err != nil {
				logger.Errorw("snapshot store failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
