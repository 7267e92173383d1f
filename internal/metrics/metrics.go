// SPDX-License-Identifier: EPL-2.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audstream_active_streams",
		Help: "Number of disk stream goroutines currently running",
	})
)

// Counters
var (
	PlaybackXrunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audstream_playback_xruns_total",
		Help: "Playback blocks the disk thread could not supply in time",
	})
	CaptureXrunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audstream_capture_xruns_total",
		Help: "Capture blocks dropped because the ring was full",
	})
	PeakBuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audstream_peak_builds_total",
		Help: "Peakfile builds by outcome",
	}, []string{"outcome"})
	DiskReadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audstream_disk_reads_total",
		Help: "Blocks read from disk by playback streams",
	})
	LoopOverrunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audstream_loop_overruns_total",
		Help: "Region reads where the loop was shorter than the requested buffer",
	})
)
