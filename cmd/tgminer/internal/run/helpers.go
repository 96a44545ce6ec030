package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal"
	"github.com/tinyland-inc/tgminer/pkg/bus"
	"github.com/tinyland-inc/tgminer/pkg/channels"
	"github.com/tinyland-inc/tgminer/pkg/config"
	"github.com/tinyland-inc/tgminer/pkg/index"
	"github.com/tinyland-inc/tgminer/pkg/logger"
	"github.com/tinyland-inc/tgminer/pkg/miner"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	configPath string
	debug      bool
	jsonLogs   bool
}

func runCmd(ctx context.Context, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.debug {
		logger.SetLevel(logger.DEBUG)
	}
	if opts.jsonLogs {
		logger.SetJSON(true)
	}

	cfg, err := internal.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireTelegram(); err != nil {
		return err
	}

	engine, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()
	writer := index.NewWriter(engine, cfg.DataDir)

	mb := bus.NewMessageBus()
	defer mb.Close()

	telegram, err := channels.NewTelegramChannel(cfg.Telegram, mb)
	if err != nil {
		return err
	}

	pipeline, err := miner.New(cfg, writer, telegram)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := telegram.Start(ctx); err != nil {
		return err
	}

	logger.InfoCF("run", "Miner started", map[string]any{
		"data_dir": cfg.DataDir,
		"index":    engine.Path(),
		"workers":  cfg.Workers,
	})

	g, gctx := errgroup.WithContext(ctx)
	// Workers stop when mb is closed, after the poller has stopped, so
	// updates Telegram has already confirmed are still mined.
	g.Go(func() error {
		pipeline.Run(context.WithoutCancel(gctx), mb, cfg.Workers)
		return nil
	})
	if cfg.MetricsAddr != "" {
		srv := newMetricsServer(cfg.MetricsAddr, pipeline.Metrics())
		g.Go(func() error {
			return serveMetrics(gctx, srv)
		})
	}

	<-gctx.Done()
	logger.InfoC("run", "Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := telegram.Stop(stopCtx); err != nil {
		logger.WarnCF("run", "Telegram channel did not stop cleanly", map[string]any{"error": err.Error()})
	}
	mb.Close()

	return g.Wait()
}

// openIndex creates the data dir and opens the index inside it. Both are
// fatal when they fail.
func openIndex(cfg *config.Config) (*index.SQLite, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, internal.CantCreate(fmt.Errorf("create data dir: %w", err))
	}
	engine, err := index.Open(cfg.IndexDir())
	if err != nil {
		return nil, internal.CantCreate(fmt.Errorf("open index: %w", err))
	}
	return engine, nil
}

func newMetricsServer(addr string, m *miner.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serveMetrics runs srv until ctx is done.
func serveMetrics(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.InfoCF("metrics", "Metrics endpoint listening", map[string]any{"addr": srv.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
