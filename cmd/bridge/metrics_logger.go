package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kosmoslabs/uartbridge/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"framing_errors", snap.FramingErrors,
					"partial_drops", snap.PartialDrops,
					"partial_timeout", snap.PartialTimeout,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
