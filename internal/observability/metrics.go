// Package observability holds the Prometheus metrics of the sync pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "strava_sync"

// Authorization results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Refresh credential outcomes
const (
	OutcomeSynced  = "synced"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

var (
	authorizations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "authorization",
		Name:      "completed_total",
		Help:      "Completed authorization callbacks by result and the stage that ended them.",
	}, []string{"result", "stage"})

	activitiesInserted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "activities",
		Name:      "inserted_total",
		Help:      "Activities written to the table store, by ingest source.",
	}, []string{"source"})

	activitiesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "activities",
		Name:      "skipped_total",
		Help:      "Activities already present in the table store, by ingest source.",
	}, []string{"source"})

	refreshCredentials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "refresh",
		Name:      "credentials_total",
		Help:      "Credentials handled by scheduled refresh runs, by outcome.",
	}, []string{"outcome"})

	lastRefreshGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "refresh",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed scheduled refresh.",
	})
)

func init() {
	prometheus.MustRegister(authorizations, activitiesInserted, activitiesSkipped, refreshCredentials, lastRefreshGauge)
}

// RecordAuthorization counts one finished authorization callback.
func RecordAuthorization(result, stage string) {
	authorizations.WithLabelValues(result, stage).Inc()
}

// RecordActivities counts inserted and skipped activities for one fetch.
func RecordActivities(source string, inserted, skipped int) {
	activitiesInserted.WithLabelValues(source).Add(float64(inserted))
	activitiesSkipped.WithLabelValues(source).Add(float64(skipped))
}

// RecordRefreshOutcome counts one credential handled by a refresh run.
func RecordRefreshOutcome(outcome string) {
	refreshCredentials.WithLabelValues(outcome).Inc()
}

// RecordRefreshRun updates the refresh watermark gauge.
func RecordRefreshRun(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastRefreshGauge.Set(float64(ts.Unix()))
}
