// Package metrics provides Prometheus counters for switch and quota activity
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	switchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codex_switch",
		Name:      "switch_total",
		Help:      "Account switches by result",
	}, []string{"result"})

	quotaProbeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codex_switch",
		Name:      "quota_probe_total",
		Help:      "Quota probe outcomes by source and state",
	}, []string{"source", "state"})

	quotaCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codex_switch",
		Name:      "quota_cache_hits_total",
		Help:      "Quota refreshes answered from the snapshot cache",
	})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codex_switch",
		Name:      "login_attempts_total",
		Help:      "Login driver outcomes",
	}, []string{"outcome"})
)

// RecordSwitch counts one switch with its history result tag.
func RecordSwitch(result string) {
	switchTotal.WithLabelValues(result).Inc()
}

// RecordProbe counts one persisted probe outcome.
func RecordProbe(source, state string) {
	quotaProbeTotal.WithLabelValues(source, state).Inc()
}

// RecordCacheHit counts one TTL cache reuse.
func RecordCacheHit() {
	quotaCacheHits.Inc()
}

// RecordLogin counts one login driver run.
func RecordLogin(outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
}
