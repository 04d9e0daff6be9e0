// Spins up the slotcache server, serving segment file reads over the Redis protocol.

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nobletooth/slotcache/pkg/config"
	"github.com/nobletooth/slotcache/pkg/port"
	"github.com/nobletooth/slotcache/pkg/segment"
	"github.com/nobletooth/slotcache/pkg/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	printVersion   = flag.Bool("print_version", false, "Print the version and exit.")
	segmentDir     = flag.String("segment_dir", "./segments", "Directory holding the `<id>.seg` segment files.")
	metricsAddress = flag.String("metrics_address", ":9090",
		"The ip:port to serve Prometheus metrics on; empty disables the metrics endpoint.")
)

// serveMetrics exposes the Prometheus registry until `ctx` is cancelled.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server stopped.", "error", err)
	}
}

func main() {
	config.InitFlags()
	utils.InitLogging()

	if *printVersion {
		slog.Info("Slotcache build info.", "version", utils.Version, "commit", utils.Commit,
			"build", utils.BuildTime, "release", utils.IsReleaseVersion(utils.Version))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() { // Listen for OS interrupts in the background.
		sig := <-signals
		slog.Info("Received termination signal, cancelling server context.", "signal", sig)
		cancel()
	}()

	if *metricsAddress != "" {
		go serveMetrics(ctx, *metricsAddress)
	}

	reader, err := segment.NewReader(*segmentDir, segment.NewHandleCacheFromFlags)
	if err != nil {
		slog.Error("Failed to create segment reader.", "dir", *segmentDir, "err", err)
		os.Exit(1)
	}
	slog.Info("Serving segments.", "dir", *segmentDir, "version", utils.Version)
	if err := port.RunRedisServer(ctx, reader); err != nil {
		slog.Error("Slotcache server stopped.", "err", err)
		os.Exit(1)
	}
}
