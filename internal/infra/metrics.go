package infra

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks ingestion counters with atomic operations.
// Exported to Prometheus through RegisterMetrics.
type Metrics struct {
	// Counters
	framesReceived   atomic.Uint64
	tradesPersisted  atomic.Uint64
	decodeErrors     atomic.Uint64
	envelopesSkipped atomic.Uint64
	sinkErrors       atomic.Uint64
	directivesSent   atomic.Uint64
	writeErrors      atomic.Uint64
	reconnects       atomic.Uint64

	// Sink insert latency
	insertLatencySumNs atomic.Int64
	insertLatencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordFrame records one inbound frame.
func (m *Metrics) RecordFrame() {
	m.framesReceived.Add(1)
}

// RecordPersisted records a successful sink insert with its latency.
func (m *Metrics) RecordPersisted(latency time.Duration) {
	m.tradesPersisted.Add(1)
	m.insertLatencySumNs.Add(latency.Nanoseconds())
	m.insertLatencyCount.Add(1)
}

// RecordDecodeError records a discarded frame.
func (m *Metrics) RecordDecodeError() {
	m.decodeErrors.Add(1)
}

// RecordSkipped records a non-trade envelope.
func (m *Metrics) RecordSkipped() {
	m.envelopesSkipped.Add(1)
}

// RecordSinkError records a failed insert.
func (m *Metrics) RecordSinkError() {
	m.sinkErrors.Add(1)
}

// RecordDirective records a subscribe directive written outbound.
func (m *Metrics) RecordDirective() {
	m.directivesSent.Add(1)
}

// RecordWriteError records a failed outbound write.
func (m *Metrics) RecordWriteError() {
	m.writeErrors.Add(1)
}

// RecordReconnect records a redial after a lost session.
func (m *Metrics) RecordReconnect() {
	m.reconnects.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	FramesReceived     uint64
	TradesPersisted    uint64
	DecodeErrors       uint64
	EnvelopesSkipped   uint64
	SinkErrors         uint64
	DirectivesSent     uint64
	WriteErrors        uint64
	Reconnects         uint64
	AvgInsertLatencyNs int64
	ActiveConnections  int32
	Timestamp          time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.insertLatencyCount.Load()
	if count > 0 {
		avgLatency = m.insertLatencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		FramesReceived:     m.framesReceived.Load(),
		TradesPersisted:    m.tradesPersisted.Load(),
		DecodeErrors:       m.decodeErrors.Load(),
		EnvelopesSkipped:   m.envelopesSkipped.Load(),
		SinkErrors:         m.sinkErrors.Load(),
		DirectivesSent:     m.directivesSent.Load(),
		WriteErrors:        m.writeErrors.Load(),
		Reconnects:         m.reconnects.Load(),
		AvgInsertLatencyNs: avgLatency,
		ActiveConnections:  m.activeConnections.Load(),
		Timestamp:          time.Now(),
	}
}

// LogValue renders the snapshot as a slog group.
func (s MetricsSnapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("frames", s.FramesReceived),
		slog.Uint64("persisted", s.TradesPersisted),
		slog.Uint64("decode_errors", s.DecodeErrors),
		slog.Uint64("skipped", s.EnvelopesSkipped),
		slog.Uint64("sink_errors", s.SinkErrors),
		slog.Uint64("directives", s.DirectivesSent),
		slog.Uint64("write_errors", s.WriteErrors),
		slog.Uint64("reconnects", s.Reconnects),
		slog.Duration("avg_insert", time.Duration(s.AvgInsertLatencyNs)),
	)
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.framesReceived.Store(0)
	m.tradesPersisted.Store(0)
	m.decodeErrors.Store(0)
	m.envelopesSkipped.Store(0)
	m.sinkErrors.Store(0)
	m.directivesSent.Store(0)
	m.writeErrors.Store(0)
	m.reconnects.Store(0)
	m.insertLatencySumNs.Store(0)
	m.insertLatencyCount.Store(0)
	m.activeConnections.Store(0)
}

// RegisterMetrics exposes m on reg as counter/gauge funcs.
func RegisterMetrics(reg prometheus.Registerer, m *Metrics) error {
	counter := func(name, help string, v *atomic.Uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(
			prometheus.CounterOpts{Namespace: "trade_ingest", Name: name, Help: help},
			func() float64 { return float64(v.Load()) },
		)
	}

	collectors := []prometheus.Collector{
		counter("frames_total", "Inbound frames received", &m.framesReceived),
		counter("trades_persisted_total", "Trades inserted into the sink", &m.tradesPersisted),
		counter("decode_errors_total", "Frames discarded by the decoder", &m.decodeErrors),
		counter("envelopes_skipped_total", "Non-trade envelopes skipped", &m.envelopesSkipped),
		counter("sink_errors_total", "Failed sink inserts", &m.sinkErrors),
		counter("directives_total", "Subscribe directives written", &m.directivesSent),
		counter("write_errors_total", "Failed outbound writes", &m.writeErrors),
		counter("reconnects_total", "Redials after a lost session", &m.reconnects),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: "trade_ingest", Name: "active_connections", Help: "Open feed connections"},
			func() float64 { return float64(m.activeConnections.Load()) },
		),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// ServeMetrics starts the /metrics endpoint (and pprof when enabled) in the background.
func ServeMetrics(addr string, gatherer prometheus.Gatherer, withPprof bool) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if withPprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("📈 Metrics server started", slog.String("addr", addr), slog.Bool("pprof", withPprof))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", slog.Any("error", err))
		}
	}()
	return srv
}
