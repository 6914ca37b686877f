package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	httpAddr        string
	logFormat       string
	logLevel        string
	metricsAddr     string
	busBuffer       int
	logMetricsEvery time.Duration
	canBitrate      string
	canFDDataBitrate string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	httpAddr := flag.String("http", ":8420", "HTTP/WebSocket listen address for the bridge UI")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	busBuffer := flag.Int("bus-buffer", 64, "Per-subscriber event bus buffer size (validated only; WebSocket subscribers use a fixed buffer of 64)")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters")
	canBitrate := flag.String("can-bitrate", "S6", "POECanable(FD) arbitration-phase bitrate command (not applied; connect requests carry their own can_bitrate)")
	canFDDataBitrate := flag.String("can-fd-data-bitrate", "Y2", "POECanableFD data-phase bitrate command (not applied; connect requests carry their own canfd_data_bitrate)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.httpAddr = *httpAddr
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.busBuffer = *busBuffer
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.canBitrate = *canBitrate
	cfg.canFDDataBitrate = *canFDDataBitrate

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.busBuffer <= 0 {
		return fmt.Errorf("bus-buffer must be > 0 (got %d)", c.busBuffer)
	}
	if c.logMetricsEvery < 0 {
		return fmt.Errorf("log-metrics-interval must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps BRIDGE_* environment variables to config fields
// unless a corresponding flag was explicitly set (flag wins over env).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["http"]; !ok {
		if v, ok := get("BRIDGE_HTTP"); ok && v != "" {
			c.httpAddr = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("BRIDGE_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("BRIDGE_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("BRIDGE_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["bus-buffer"]; !ok {
		if v, ok := get("BRIDGE_BUS_BUFFER"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.busBuffer = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid BRIDGE_BUS_BUFFER: %w", err)
			}
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("BRIDGE_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid BRIDGE_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["can-bitrate"]; !ok {
		if v, ok := get("BRIDGE_CAN_BITRATE"); ok && v != "" {
			c.canBitrate = v
		}
	}
	if _, ok := set["can-fd-data-bitrate"]; !ok {
		if v, ok := get("BRIDGE_CAN_FD_DATA_BITRATE"); ok && v != "" {
			c.canFDDataBitrate = v
		}
	}
	return firstErr
}
