// Package metrics exposes the merger's Prometheus metrics (spec.md §9,
// observability non-goal lifted for the ambient operational surface).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fsphil/tsmerge/internal/merger"
)

// Metrics holds the process's Prometheus collectors, registered on their
// own registry so tests can spin up isolated instances.
type Metrics struct {
	Registry *prometheus.Registry

	SegmentsPublished *prometheus.CounterVec
	PacketsDropped    *prometheus.CounterVec
	StationsLive      prometheus.Gauge
	ViewersConnected  prometheus.Gauge
	OutputPCR         prometheus.Gauge

	lastMalformedTS uint64
}

// New creates and registers the metric set.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		SegmentsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsmerge_segments_published_total",
			Help: "Segments published to the output chain, by source station.",
		}, []string{"station"}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsmerge_packets_dropped_total",
			Help: "Ingest envelopes dropped, by reason.",
		}, []string{"reason"}),
		StationsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tsmerge_stations_live",
			Help: "Number of stations currently within their liveness timeout.",
		}),
		ViewersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tsmerge_viewers_connected",
			Help: "Number of connected TCP viewers.",
		}),
		OutputPCR: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tsmerge_output_pcr",
			Help: "PCR base of the last segment published to the output chain.",
		}),
	}

	reg.MustRegister(
		m.SegmentsPublished,
		m.PacketsDropped,
		m.StationsLive,
		m.ViewersConnected,
		m.OutputPCR,
	)

	// Pre-create the series for every known drop reason so dashboards
	// don't show a gap before the first occurrence of each.
	for _, r := range []merger.DropReason{
		merger.DropMalformedFrame,
		merger.DropLate,
		merger.DropDuplicate,
		merger.DropStationTableFull,
	} {
		m.PacketsDropped.WithLabelValues(r.String())
	}
	m.PacketsDropped.WithLabelValues("malformed_ts")

	return m
}

// SyncMalformedTS adds the growth in mg's cumulative malformed-TS count
// since the last call to its dedicated counter series. tspacket parse
// failures aren't a DropReason (the envelope is still stored, per
// spec.md §6), so they're tracked out of band here instead.
func (m *Metrics) SyncMalformedTS(mg *merger.Merger) {
	cur := mg.MalformedTSCount()
	if cur > m.lastMalformedTS {
		m.PacketsDropped.WithLabelValues("malformed_ts").Add(float64(cur - m.lastMalformedTS))
	}
	m.lastMalformedTS = cur
}

// RecordDrop increments the drop counter for reason, if it is a real drop
// (DropNone is a no-op: nothing was dropped).
func (m *Metrics) RecordDrop(reason merger.DropReason) {
	if reason == merger.DropNone {
		return
	}
	m.PacketsDropped.WithLabelValues(reason.String()).Inc()
}
