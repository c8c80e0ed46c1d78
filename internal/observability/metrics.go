// Package observability provides Prometheus metrics for the indexer.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the indexer's Prometheus collectors.
type Metrics struct {
	TradesInserted  *prometheus.CounterVec
	TradesConfirmed prometheus.Counter
	LogsSkipped     *prometheus.CounterVec
	ChunksFailed    prometheus.Counter
	Reconnects      *prometheus.CounterVec
	CheckpointBlock prometheus.Gauge
	HeadBlock       prometheus.Gauge
}

// NewMetrics registers all collectors under the namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "swapledger"
	}

	return &Metrics{
		TradesInserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "trades_inserted_total",
			Help:      "Trade rows written to the ledger by side",
		}, []string{"side"}),
		TradesConfirmed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "trades_confirmed_total",
			Help:      "Trades promoted from pending to confirmed",
		}),
		LogsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "logs_skipped_total",
			Help:      "Logs dropped from the pipeline by reason",
		}, []string{"reason"}),
		ChunksFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "chunks_failed_total",
			Help:      "Backfill chunks abandoned after retries",
		}),
		Reconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Connection attempts scheduled after a failure, by cause",
		}, []string{"cause"}),
		CheckpointBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "checkpoint_block",
			Help:      "Highest block number with a durably persisted trade",
		}),
		HeadBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "head_block",
			Help:      "Chain head observed at the last connect",
		}),
	}
}

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the process-wide metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTradeInserted counts a persisted trade row.
func RecordTradeInserted(side string) {
	DefaultMetrics.TradesInserted.WithLabelValues(side).Inc()
}

// RecordTradeConfirmed counts a pending-to-confirmed promotion.
func RecordTradeConfirmed() {
	DefaultMetrics.TradesConfirmed.Inc()
}

// RecordLogSkipped counts a log dropped from the pipeline.
func RecordLogSkipped(reason string) {
	DefaultMetrics.LogsSkipped.WithLabelValues(reason).Inc()
}

// RecordChunkFailed counts an abandoned backfill chunk.
func RecordChunkFailed() {
	DefaultMetrics.ChunksFailed.Inc()
}

// RecordReconnect counts a scheduled reconnect.
func RecordReconnect(cause string) {
	DefaultMetrics.Reconnects.WithLabelValues(cause).Inc()
}

// SetCheckpointBlock updates the checkpoint gauge.
func SetCheckpointBlock(block uint64) {
	DefaultMetrics.CheckpointBlock.Set(float64(block))
}

// SetHeadBlock updates the head gauge.
func SetHeadBlock(block uint64) {
	DefaultMetrics.HeadBlock.Set(float64(block))
}
