// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wizardTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightclaim_wizard_transitions_total",
		Help: "Wizard step transitions by direction and landing step",
	}, []string{"direction", "step"}) // direction=next|prev

	wizardSessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightclaim_wizard_sessions_started_total",
		Help: "Wizard sessions started by mode",
	}, []string{"mode"}) // mode=regular|fast_track

	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightclaim_submissions_total",
		Help: "Claim submissions by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	pendingResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightclaim_pending_resolutions_total",
		Help: "Pending document promotions by document kind and outcome",
	}, []string{"document", "outcome"})

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightclaim_uploads_total",
		Help: "Upload attempts by outcome",
	}, []string{"outcome"}) // outcome=stored|unsupported_type|too_large|failed

	lookupRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightclaim_lookup_requests_total",
		Help: "Outbound lookup requests by collaborator and outcome",
	}, []string{"lookup", "outcome"}) // lookup=airports|flights, outcome=success|error|cache_hit

	webhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightclaim_webhook_deliveries_total",
		Help: "Webhook deliveries by outcome",
	}, []string{"outcome"})
)

func RecordTransition(direction string, step string) {
	wizardTransitions.WithLabelValues(direction, step).Inc()
}

func RecordSessionStarted(fastTrack bool) {
	mode := "regular"
	if fastTrack {
		mode = "fast_track"
	}
	wizardSessionsStarted.WithLabelValues(mode).Inc()
}

func RecordSubmission(success bool) {
	submissionsTotal.WithLabelValues(outcome(success)).Inc()
}

func RecordPendingResolution(document string, success bool) {
	pendingResolutions.WithLabelValues(document, outcome(success)).Inc()
}

func RecordUpload(result string) {
	uploadsTotal.WithLabelValues(result).Inc()
}

func RecordLookup(lookup, result string) {
	lookupRequests.WithLabelValues(lookup, result).Inc()
}

func RecordWebhookDelivery(success bool) {
	webhookDeliveries.WithLabelValues(outcome(success)).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
