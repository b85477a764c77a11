package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsHandler exposes the layer, snapshot, index and mirror counters.
// Values are read at scrape time.
func (a *app) metricsHandler() http.Handler {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"layer": a.layerID}
	gauge := func(name, help string, fn func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "voxlayer", Name: name, Help: help, ConstLabels: labels,
		}, fn)
	}
	counter := func(name, help string, extra prometheus.Labels, fn func() float64) prometheus.Collector {
		cl := prometheus.Labels{"layer": a.layerID}
		for k, v := range extra {
			cl[k] = v
		}
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "voxlayer", Name: name, Help: help, ConstLabels: cl,
		}, fn)
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		gauge("layer_chunks", "Resident chunk count.", func() float64 { return float64(a.ed.Stats().Chunks) }),
		gauge("layer_solids", "Solid voxel count.", func() float64 { return float64(a.ed.Stats().Solids) }),
		gauge("layer_edit_seq", "Last applied edit sequence.", func() float64 { return float64(a.ed.Stats().Seq) }),
		gauge("snapshot_bytes", "Size of the last snapshot file.", func() float64 { return float64(a.lastSnapBytes.Load()) }),
		counter("snapshots_total", "Snapshots written by this process.", prometheus.Labels{"result": "ok"},
			func() float64 { return float64(a.snapshots.Load()) }),
		counter("snapshots_total", "Snapshots written by this process.", prometheus.Labels{"result": "error"},
			func() float64 { return float64(a.snapshotFails.Load()) }),
	)
	if a.idx != nil {
		reg.MustRegister(
			gauge("index_queue_depth", "Index writer backlog.", func() float64 { return float64(a.idx.Stats().QueueDepth) }),
			counter("index_dropped_total", "Index writes dropped on a full queue.", prometheus.Labels{"kind": "edit"},
				func() float64 { return float64(a.idx.Stats().DropEditTotal) }),
			counter("index_dropped_total", "Index writes dropped on a full queue.", prometheus.Labels{"kind": "snapshot"},
				func() float64 { return float64(a.idx.Stats().DropSnapshotTotal) }),
			counter("index_dropped_total", "Index writes dropped on a full queue.", prometheus.Labels{"kind": "archive"},
				func() float64 { return float64(a.idx.Stats().DropArchiveTotal) }),
		)
	}
	if a.mirror != nil {
		reg.MustRegister(
			gauge("mirror_queue_depth", "Object store upload backlog.", func() float64 { return float64(a.mirror.Stats().QueueDepth) }),
			counter("mirror_uploads_total", "Object store uploads.", prometheus.Labels{"result": "ok"},
				func() float64 { return float64(a.mirror.Stats().UploadSuccessTotal) }),
			counter("mirror_uploads_total", "Object store uploads.", prometheus.Labels{"result": "error"},
				func() float64 { return float64(a.mirror.Stats().UploadFailTotal) }),
			counter("mirror_dropped_total", "Uploads dropped on a full queue.", nil,
				func() float64 { return float64(a.mirror.Stats().DroppedTotal) }),
		)
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
