// Package metrics exposes Prometheus counters/gauges for the protocol
// layer, grounded on the teacher's internal/metrics package (promauto
// registration, a cheap local-atomic mirror for periodic log-lines, and an
// HTTP server wired the same way).
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/kosmoslabs/uartbridge/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SimpleSerialLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "simpleserial_lines_total",
		Help: "Total SimpleSerial lines emitted.",
	})
	POESerialPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poeserial_packets_total",
		Help: "Total POESerial packets emitted.",
	})
	POESerialCRCMismatch = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poeserial_crc_mismatch_total",
		Help: "POESerial packets whose crc_hex field did not match the recomputed checksum (diagnostic only, non-fatal).",
	})
	POECanableFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poecanable_frames_total",
		Help: "Total logical CAN messages emitted, by kind (t=data, r=remote).",
	}, []string{"type"})
	POECanableMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poecanable_messages_total",
		Help: "Total reassembled logical CAN messages emitted, by protocol.",
	}, []string{"protocol"})
	FramingErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framing_errors_total",
		Help: "Malformed/unmatched bytes encountered, by engine.",
	}, []string{"engine"})
	PartialOverflow = promauto.NewCounter(prometheus.CounterOpts{
		Name: "partial_overflow_total",
		Help: "Partial CAN packets dropped for exceeding the 1024-byte limit.",
	})
	PartialTimeout = promauto.NewCounter(prometheus.CounterOpts{
		Name: "partial_timeout_total",
		Help: "Partial packets (CAN or POESerial) evicted for exceeding their age limit.",
	})
	PartialPacketsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "partial_packets_in_flight",
		Help: "Current number of in-flight CAN reassembly slots across all ports.",
	})
	BytesRx = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bytes_rx_total",
		Help: "Raw bytes received, by port.",
	}, []string{"port"})
	BytesTx = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bytes_tx_total",
		Help: "Raw bytes written, by port.",
	}, []string{"port"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by kind (config/io/framing/parse/timeout/overflow).",
	}, []string{"kind"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
)

// Local atomic mirrors, cheap to read for a periodic log line without
// touching the Prometheus registry.
var (
	localFramingErrors  uint64
	localPartialDrops   uint64
	localPartialTimeout uint64
)

// Snapshot is a cheap copy of the local counters for a periodic log line.
type Snapshot struct {
	FramingErrors  uint64
	PartialDrops   uint64
	PartialTimeout uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramingErrors:  atomic.LoadUint64(&localFramingErrors),
		PartialDrops:   atomic.LoadUint64(&localPartialDrops),
		PartialTimeout: atomic.LoadUint64(&localPartialTimeout),
	}
}

func IncFramingError(engine string) {
	FramingErrors.WithLabelValues(engine).Inc()
	atomic.AddUint64(&localFramingErrors, 1)
}

func IncPartialOverflow() {
	PartialOverflow.Inc()
	atomic.AddUint64(&localPartialDrops, 1)
}

func IncPartialTimeout() {
	PartialTimeout.Inc()
	atomic.AddUint64(&localPartialTimeout, 1)
}

func IncError(kind string) { Errors.WithLabelValues(kind).Inc() }

func AddBytesRx(port string, n int) { BytesRx.WithLabelValues(port).Add(float64(n)) }
func AddBytesTx(port string, n int) { BytesTx.WithLabelValues(port).Add(float64(n)) }

func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
}

// StartHTTP serves Prometheus metrics at /metrics on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}
