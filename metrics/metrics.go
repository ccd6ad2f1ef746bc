// Package metrics exposes the pipeline's operational counters and
// gauges on a standard Prometheus /metrics endpoint, the ops-visibility
// surface promised by spec §5.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts completed tick() calls by outcome.
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletwatch",
		Name:      "ticks_total",
		Help:      "Completed pipeline ticks by outcome.",
	}, []string{"result"})

	// CursorHeight is the last block height the cursor has advanced to.
	CursorHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "walletwatch",
		Name:      "cursor_height",
		Help:      "Last indexed block height the pipeline cursor has advanced past.",
	})

	// EventsDispatched counts notification groups handed to the
	// notifier.
	EventsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walletwatch",
		Name:      "events_dispatched_total",
		Help:      "Event groups handed to the notifier for delivery.",
	})

	// PriceAlertsDispatched counts price alerts handed to the notifier.
	PriceAlertsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walletwatch",
		Name:      "price_alerts_dispatched_total",
		Help:      "Price alerts handed to the notifier for delivery.",
	})

	// EventsSuppressed counts BTC events dropped by the cross-source
	// suppression pass (spec §4.6 step 7).
	EventsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walletwatch",
		Name:      "events_suppressed_total",
		Help:      "BTC events dropped because a semantic event suppressed their (address, block).",
	})

	// IdentityResolutionSkipped counts unresolved primaries skipped
	// per-tick because of a non-fatal resolution or linkage error.
	IdentityResolutionSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletwatch",
		Name:      "identity_resolution_skipped_total",
		Help:      "Unresolved primaries skipped in a tick, by reason.",
	}, []string{"reason"})
)

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
