package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/blockberries/nullspace/config"
	"github.com/blockberries/nullspace/example/devnet"
	nullspacegrpc "github.com/blockberries/nullspace/grpc"
	"github.com/blockberries/nullspace/ledger"
	"github.com/blockberries/nullspace/logging"
	"github.com/blockberries/nullspace/metrics"
	"github.com/blockberries/nullspace/store"
	"github.com/blockberries/nullspace/types"
	"github.com/blockberries/nullspace/uploader"
)

const shutdownTimeout = 5 * time.Second

var (
	devMode   bool
	blockTime time.Duration
)

func newStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Runs the ledger and serves it over gRPC",
		Long: "Runs the ledger and serves it over gRPC for a consensus engine. " +
			"With --dev the node handshakes itself with the genesis file and produces its own blocks.",
		RunE: runStart,
	}
	cmd.Flags().BoolVar(&devMode, "dev", false, "produce blocks locally instead of waiting for an engine")
	cmd.Flags().DurationVar(&blockTime, "block-time", devnet.DefaultBlockTime, "block interval in --dev mode")
	return cmd
}

func resolveHome(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(home, p)
}

func runStart(*cobra.Command, []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}
	logger, closer := logging.Setup("nullspaced", cfg.Environment, cfg.LoggingOptions())
	defer closer.Close()

	dbs, err := store.OpenDisk(cfg.DataDir, cfg.Storage.CacheMB, cfg.Storage.Handles)
	if err != nil {
		return fmt.Errorf("open databases: %w", err)
	}
	defer dbs.Close()

	app, err := ledger.Open(dbs, cfg.LedgerConfig(), logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(cfg.Uploader.Sinks) > 0 {
		sinks := make([]uploader.Sink, 0, len(cfg.Uploader.Sinks))
		for _, s := range cfg.Uploader.Sinks {
			sinks = append(sinks, uploader.NewHTTPSink(s.Name, s.URL, &http.Client{Timeout: s.Timeout}))
		}
		up := uploader.New(cfg.UploaderConfig(), sinks, logger, metrics.Uploader())
		commits, cancel := app.Pipeline().Subscribe(cfg.UploaderConfig().QueueSize)
		defer cancel()
		go up.Run(ctx, commits)
	}

	if cfg.MetricsAddress != "" {
		metricsSrv := serveMetrics(cfg.MetricsAddress, logger)
		defer metricsSrv.Close()
	}

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	node := nullspacegrpc.NewGRPCServer(app, logger)
	gs := node.NewServer()

	devErr := make(chan error, 1)
	if devMode {
		genesis, err := config.LoadGenesis(cfg.GenesisFile)
		if err != nil {
			return err
		}
		resp, err := node.Server().Handshake(ctx, types.HandshakeRequest{Genesis: &genesis})
		if err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
		producer := devnet.New(node.Server(), resp.LastBlock, devnet.Config{BlockTime: blockTime, SkipEmpty: true}, logger)
		go func() { devErr <- producer.Run(ctx) }()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Serving ledger", "addr", cfg.ListenAddress)
		serveErr <- gs.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
		gracefulStop(gs, logger)
		return nil
	case <-node.Server().HaltNotify():
		gracefulStop(gs, logger)
		return node.Server().Halted()
	case err := <-devErr:
		gracefulStop(gs, logger)
		return err
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}
		return nil
	}
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "addr", addr, "err", err)
		}
	}()
	return srv
}

func gracefulStop(gs *grpc.Server, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("Forcing gRPC server stop")
		gs.Stop()
	}
}
