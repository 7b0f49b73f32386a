// Package metrics exposes the node's prometheus collectors. Each group
// is registered lazily on first use; methods are safe on a nil
// receiver so components can run without metrics wired.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nullspace"

var (
	pipelineOnce sync.Once
	pipelineReg  *PipelineMetrics

	mempoolOnce sync.Once
	mempoolReg  *MempoolMetrics

	proofOnce sync.Once
	proofReg  *ProofMetrics

	uploaderOnce sync.Once
	uploaderReg  *UploaderMetrics
)

// PipelineMetrics tracks block application.
type PipelineMetrics struct {
	blocks   *prometheus.CounterVec
	txs      *prometheus.CounterVec
	latency  prometheus.Histogram
	height   prometheus.Gauge
	halted   prometheus.Gauge
	recovery *prometheus.CounterVec
}

// Pipeline returns the pipeline metrics singleton.
func Pipeline() *PipelineMetrics {
	pipelineOnce.Do(func() {
		pipelineReg = &PipelineMetrics{
			blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "blocks_total",
				Help:      "Blocks handed to the pipeline, segmented by outcome.",
			}, []string{"outcome"}),
			txs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "transactions_total",
				Help:      "Executed transactions segmented by receipt outcome.",
			}, []string{"outcome"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "apply_duration_seconds",
				Help:      "Time to execute and commit one block.",
				Buckets:   prometheus.DefBuckets,
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "height",
				Help:      "Last committed state height.",
			}),
			halted: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "halted",
				Help:      "1 when the pipeline has halted on a fatal error.",
			}),
			recovery: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "recoveries_total",
				Help:      "Startup recoveries segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			pipelineReg.blocks,
			pipelineReg.txs,
			pipelineReg.latency,
			pipelineReg.height,
			pipelineReg.halted,
			pipelineReg.recovery,
		)
	})
	return pipelineReg
}

// ObserveBlock records a block outcome ("committed", "noop",
// "rejected", "halted") and, for commits, its latency and height.
func (m *PipelineMetrics) ObserveBlock(outcome string, height uint64, d time.Duration) {
	if m == nil {
		return
	}
	m.blocks.WithLabelValues(outcome).Inc()
	if outcome == "committed" {
		m.latency.Observe(d.Seconds())
		m.height.Set(float64(height))
	}
}

// ObserveTx records one receipt outcome.
func (m *PipelineMetrics) ObserveTx(outcome string) {
	if m == nil {
		return
	}
	m.txs.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) SetHalted(halted bool) {
	if m == nil {
		return
	}
	if halted {
		m.halted.Set(1)
	} else {
		m.halted.Set(0)
	}
}

// ObserveRecovery records a startup recovery outcome ("clean",
// "replayed", "mismatch").
func (m *PipelineMetrics) ObserveRecovery(outcome string) {
	if m == nil {
		return
	}
	m.recovery.WithLabelValues(outcome).Inc()
}

// MempoolMetrics tracks pending transactions and admission.
type MempoolMetrics struct {
	transactions prometheus.Gauge
	accounts     prometheus.Gauge
	rejects      *prometheus.CounterVec
}

// Mempool returns the mempool metrics singleton.
func Mempool() *MempoolMetrics {
	mempoolOnce.Do(func() {
		mempoolReg = &MempoolMetrics{
			transactions: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mempool",
				Name:      "transactions",
				Help:      "Transactions held in the mempool.",
			}),
			accounts: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mempool",
				Name:      "accounts",
				Help:      "Accounts with at least one pending transaction.",
			}),
			rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mempool",
				Name:      "rejects_total",
				Help:      "Rejected submissions segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(mempoolReg.transactions, mempoolReg.accounts, mempoolReg.rejects)
	})
	return mempoolReg
}

// SetSize updates the transaction and account gauges.
func (m *MempoolMetrics) SetSize(transactions, accounts int) {
	if m == nil {
		return
	}
	m.transactions.Set(float64(transactions))
	m.accounts.Set(float64(accounts))
}

func (m *MempoolMetrics) RecordReject(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.rejects.WithLabelValues(reason).Inc()
}

// ProofMetrics counts proofs served and verified.
type ProofMetrics struct {
	built    prometheus.Counter
	verified *prometheus.CounterVec
}

// Proofs returns the proof metrics singleton.
func Proofs() *ProofMetrics {
	proofOnce.Do(func() {
		proofReg = &ProofMetrics{
			built: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proof",
				Name:      "built_total",
				Help:      "Proofs built for queries and snapshots.",
			}),
			verified: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proof",
				Name:      "verified_total",
				Help:      "Proof verifications segmented by result.",
			}, []string{"result"}),
		}
		prometheus.MustRegister(proofReg.built, proofReg.verified)
	})
	return proofReg
}

func (m *ProofMetrics) RecordBuilt() {
	if m == nil {
		return
	}
	m.built.Inc()
}

func (m *ProofMetrics) RecordVerify(ok bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !ok {
		result = "invalid"
	}
	m.verified.WithLabelValues(result).Inc()
}

// UploaderMetrics tracks downstream delivery.
type UploaderMetrics struct {
	attempts *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	queue    prometheus.Gauge
}

// Uploader returns the uploader metrics singleton.
func Uploader() *UploaderMetrics {
	uploaderOnce.Do(func() {
		uploaderReg = &UploaderMetrics{
			attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "uploader",
				Name:      "attempts_total",
				Help:      "Delivery attempts segmented by sink and outcome.",
			}, []string{"sink", "outcome"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "uploader",
				Name:      "dropped_total",
				Help:      "Deliveries abandoned after exhausting retries or queue space.",
			}, []string{"sink", "reason"}),
			queue: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "uploader",
				Name:      "queue_depth",
				Help:      "Committed blocks waiting for delivery.",
			}),
		}
		prometheus.MustRegister(uploaderReg.attempts, uploaderReg.dropped, uploaderReg.queue)
	})
	return uploaderReg
}

func (m *UploaderMetrics) RecordAttempt(sink string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.attempts.WithLabelValues(sink, outcome).Inc()
}

func (m *UploaderMetrics) RecordDrop(sink, reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(sink, reason).Inc()
}

func (m *UploaderMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queue.Set(float64(n))
}
