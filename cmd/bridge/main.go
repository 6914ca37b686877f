package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kosmoslabs/uartbridge/internal/dispatcher"
	"github.com/kosmoslabs/uartbridge/internal/metrics"
	"github.com/kosmoslabs/uartbridge/internal/wsbridge"
)

// Helper implementations moved to dedicated files: version.go, config.go, logger.go, metrics_logger.go, api.go.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("bridge %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	buses := dispatcher.NewBuses()
	d := dispatcher.New(buses)

	mux := http.NewServeMux()
	registerAPI(mux, d, l)
	wsbridge.Mux(mux, buses)

	httpSrv := &http.Server{Addr: cfg.httpAddr, Handler: mux}
	go func() {
		l.Info("http_listen", "addr", cfg.httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Error("http_server_error", "error", err)
			cancel()
		}
	}()

	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsSrv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = metricsSrv.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	_ = httpSrv.Shutdown(context.Background())
	wg.Wait()
}
