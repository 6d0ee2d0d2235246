// Package metrics exposes Prometheus counters for the lifecycle engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts committed job transitions by edge.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldserve",
		Name:      "job_transitions_total",
		Help:      "Committed job state transitions by source and target status.",
	}, []string{"from", "to"})

	// ClaimConflictsTotal counts claim attempts that lost the race.
	ClaimConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldserve",
		Name:      "claim_conflicts_total",
		Help:      "Claim attempts rejected because the job was already taken.",
	})

	// SettlementsTotal counts jobs settled to worker wallets.
	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldserve",
		Name:      "settlements_total",
		Help:      "Jobs whose escrow was settled to a worker wallet.",
	})

	// DisputesOpenedTotal counts disputes raised.
	DisputesOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldserve",
		Name:      "disputes_opened_total",
		Help:      "Disputes opened against in-flight jobs.",
	})

	// OTPFailuresTotal counts failed start-code verifications.
	OTPFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldserve",
		Name:      "otp_failures_total",
		Help:      "Failed start-code verifications by kind.",
	}, []string{"kind"})
)
