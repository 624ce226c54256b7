// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClaimOutcomes counts claim attempts by result status
// (secured, already_secured, nothing_in_range, failed).
var ClaimOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "landmark_claim_outcomes_total",
	Help: "Claim attempts by outcome",
}, []string{"status"})

var NodesClaimed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "landmark_nodes_claimed_total",
	Help: "Nodes newly claimed across all players",
})

var PointsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "landmark_points_awarded_total",
	Help: "Points added to player totals, by source",
}, []string{"source"})

var ClaimDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "landmark_claim_duration_seconds",
	Help:    "Time spent in the claim read-check-write sequence",
	Buckets: prometheus.DefBuckets,
})

var ClaimsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
	Name: "landmark_claims_coalesced_total",
	Help: "Duplicate in-flight claim requests answered by a shared evaluation",
})

var ProximityEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "landmark_proximity_evaluations_total",
	Help: "Proximity evaluations by whether a claim was possible",
}, []string{"can_claim"})

var CatalogNodes = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "landmark_catalog_nodes",
	Help: "Valid nodes in the cached catalog",
})

var CatalogRejected = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "landmark_catalog_rejected_nodes",
	Help: "Catalog rows excluded from evaluation because they are malformed",
})
