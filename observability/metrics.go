package observability

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type ledgerMetrics struct {
	operations  *prometheus.CounterVec
	lotteryWins prometheus.Counter
	treasury    prometheus.Gauge
	tweetTotal  prometheus.Gauge
}

type rpcMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	registryOnce sync.Once
	registry     *prometheus.Registry

	ledgerOnce     sync.Once
	ledgerRegistry *ledgerMetrics

	rpcOnce     sync.Once
	rpcRegistry *rpcMetrics
)

// Registry returns the process-wide metrics registry the daemon exposes.
func Registry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
	return registry
}

// LedgerMetrics returns the lazily-initialised metrics for ledger operations.
func LedgerMetrics() *ledgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &ledgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "twitt3r",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Total ledger operations segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			lotteryWins: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "twitt3r",
				Subsystem: "ledger",
				Name:      "lottery_wins_total",
				Help:      "Total jackpot payouts triggered by new tweets.",
			}),
			treasury: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "twitt3r",
				Subsystem: "ledger",
				Name:      "treasury_balance",
				Help:      "Current treasury balance in base units.",
			}),
			tweetTotal: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "twitt3r",
				Subsystem: "ledger",
				Name:      "tweets_total",
				Help:      "Tweet ids allocated since the last clear.",
			}),
		}
		Registry().MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.lotteryWins,
			ledgerRegistry.treasury,
			ledgerRegistry.tweetTotal,
		)
	})
	return ledgerRegistry
}

// ObserveOperation records one ledger operation attempt.
func (m *ledgerMetrics) ObserveOperation(method, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(method, outcome).Inc()
}

// ObserveLotteryWin records a jackpot payout.
func (m *ledgerMetrics) ObserveLotteryWin() {
	if m == nil {
		return
	}
	m.lotteryWins.Inc()
}

// SetTreasury exports the treasury level. Precision loss past float64 is
// acceptable for monitoring.
func (m *ledgerMetrics) SetTreasury(balance *big.Int) {
	if m == nil || balance == nil {
		return
	}
	value, _ := new(big.Float).SetInt(balance).Float64()
	m.treasury.Set(value)
}

// SetTweetTotal exports the allocated-id count.
func (m *ledgerMetrics) SetTweetTotal(total uint64) {
	if m == nil {
		return
	}
	m.tweetTotal.Set(float64(total))
}

// RPCMetrics returns the lazily-initialised metrics for the JSON-RPC surface.
func RPCMetrics() *rpcMetrics {
	rpcOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "twitt3r",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "twitt3r",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		Registry().MustRegister(rpcRegistry.requests, rpcRegistry.latency)
	})
	return rpcRegistry
}

// ObserveRequest records one RPC request and its handler latency.
func (m *rpcMetrics) ObserveRequest(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}
