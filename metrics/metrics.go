// Package metrics declares the Prometheus collectors the rest of this
// module increments. The collector shapes (label sets, naming) follow the
// teacher's own metrics package as referenced from storage.go and
// parser/switch.go (metrics.GCSRetryCount.WithLabelValues(...).Inc(),
// metrics.WorkerState.WithLabelValues(...).Inc()/.Dec()), generalized from
// BigQuery-table labels to this domain's (test_name, stage) labels.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// FilenameParseErrors counts archive listing entries whose filename
	// didn't match any known grammar (archive.parseLegacyCanFilename /
	// parseNewFormatFilename).
	FilenameParseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataingest_filename_parse_errors_total",
			Help: "Count of archive filenames that failed to parse, by bucket.",
		},
		[]string{"bucket"},
	)

	// RecordParseErrors counts container records that failed JSON decoding.
	RecordParseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataingest_record_parse_errors_total",
			Help: "Count of container records that failed to parse, by extension.",
		},
		[]string{"ext"},
	)

	// UnknownTestName counts measurements whose test_name had no
	// registered observation transformer.
	UnknownTestName = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataingest_unknown_test_name_total",
			Help: "Count of measurements skipped for having no registered transformer.",
		},
		[]string{"test_name"},
	)

	// CacheHit and CacheMiss count cache.Fetch outcomes.
	CacheHit = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dataingest_cache_hit_total",
		Help: "Count of cache.Fetch calls satisfied by an existing local file.",
	})
	CacheMiss = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dataingest_cache_miss_total",
		Help: "Count of cache.Fetch calls that downloaded from object storage.",
	})

	// BytesProcessed tracks cumulative downloaded bytes, for throughput and
	// ETA reporting.
	BytesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dataingest_bytes_processed_total",
		Help: "Cumulative bytes downloaded from object storage.",
	})

	// ETASeconds reports the pipeline's current estimated-time-remaining.
	ETASeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dataingest_eta_seconds",
		Help: "Estimated seconds remaining for the in-progress ProcessRange call.",
	})

	// WorkerState tracks in-flight worker goroutines per pipeline stage,
	// the same Inc-on-start/Dec-on-finish pattern as the teacher's
	// metrics.WorkerState (parser/switch.go).
	WorkerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dataingest_worker_state",
			Help: "Number of goroutines currently active in a pipeline stage.",
		},
		[]string{"stage"},
	)

	// MinicanYAMLSkipped counts yaml-format minican envelopes skipped
	// during container streaming (see container.streamMinican).
	MinicanYAMLSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dataingest_minican_yaml_skipped_total",
		Help: "Count of yaml-format minican envelopes skipped rather than decoded.",
	})
)

func init() {
	prometheus.MustRegister(
		FilenameParseErrors,
		RecordParseErrors,
		UnknownTestName,
		CacheHit,
		CacheMiss,
		BytesProcessed,
		ETASeconds,
		WorkerState,
		MinicanYAMLSkipped,
	)
}
