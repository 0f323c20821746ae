package infra

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetrics_RecordPersisted(t *testing.T) {
	m := &Metrics{}

	m.RecordPersisted(1000 * time.Nanosecond)
	m.RecordPersisted(2000 * time.Nanosecond)
	m.RecordPersisted(3000 * time.Nanosecond)

	snap := m.Snapshot()

	if snap.TradesPersisted != 3 {
		t.Errorf("Expected 3 trades, got %d", snap.TradesPersisted)
	}

	// Average latency: (1000 + 2000 + 3000) / 3 = 2000
	if snap.AvgInsertLatencyNs != 2000 {
		t.Errorf("Expected avg latency 2000, got %d", snap.AvgInsertLatencyNs)
	}
}

func TestMetrics_Connections(t *testing.T) {
	m := &Metrics{}

	m.IncrementConnections()
	m.IncrementConnections()

	snap := m.Snapshot()
	if snap.ActiveConnections != 2 {
		t.Errorf("Expected 2 connections, got %d", snap.ActiveConnections)
	}

	m.DecrementConnections()
	snap = m.Snapshot()
	if snap.ActiveConnections != 1 {
		t.Errorf("Expected 1 connection, got %d", snap.ActiveConnections)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordFrame()
	m.RecordDecodeError()
	m.RecordSinkError()
	m.RecordDirective()
	m.IncrementConnections()

	m.Reset()
	snap := m.Snapshot()

	if snap.FramesReceived != 0 || snap.DecodeErrors != 0 || snap.SinkErrors != 0 || snap.DirectivesSent != 0 {
		t.Errorf("Expected zero counters after reset, got %+v", snap)
	}
	if snap.ActiveConnections != 0 {
		t.Error("Expected 0 connections after reset")
	}
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := &Metrics{}

	if err := RegisterMetrics(reg, m); err != nil {
		t.Fatalf("RegisterMetrics failed: %v", err)
	}
	// Registering twice is tolerated.
	if err := RegisterMetrics(reg, m); err != nil {
		t.Fatalf("second RegisterMetrics failed: %v", err)
	}

	m.RecordFrame()
	m.RecordFrame()
	m.RecordSkipped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	values := make(map[string]float64)
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[mf.GetName()] = c.GetValue()
			}
		}
	}

	if values["trade_ingest_frames_total"] != 2 {
		t.Errorf("frames_total = %v, want 2", values["trade_ingest_frames_total"])
	}
	if values["trade_ingest_envelopes_skipped_total"] != 1 {
		t.Errorf("envelopes_skipped_total = %v, want 1", values["trade_ingest_envelopes_skipped_total"])
	}
}
