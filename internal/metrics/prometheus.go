package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Dispatch metrics.
	UpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tma",
		Subsystem: "dispatch",
		Name:      "updates_total",
		Help:      "Total number of Telegram updates dispatched, by handler kind.",
	}, []string{"kind"})
	CallbackAcksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tma",
		Subsystem: "dispatch",
		Name:      "callback_acks_total",
		Help:      "Total number of callback acknowledgements sent.",
	}, []string{"outcome"}) // "ok" or "error"
	AdminRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tma",
		Subsystem: "dispatch",
		Name:      "admin_rejections_total",
		Help:      "Total number of admin callbacks rejected for non-admin users.",
	})
	BotAPIErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tma",
		Subsystem: "botapi",
		Name:      "errors_total",
		Help:      "Total number of failed Bot API calls, by method.",
	}, []string{"method"})
	StoreErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tma",
		Subsystem: "session",
		Name:      "errors_total",
		Help:      "Total number of failed session store calls, by operation.",
	}, []string{"op"})

	// Gateway metrics.
	SnapshotsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tma",
		Subsystem: "gateway",
		Name:      "snapshots_total",
		Help:      "Total number of metrics snapshots assembled.",
	})
	SinkWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tma",
		Subsystem: "sink",
		Name:      "writes_total",
		Help:      "Total number of spreadsheet sink appends.",
	}, []string{"outcome"}) // "ok", "error" or "skipped"

	// HTTP metrics.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tma",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests served, by route and status code.",
	}, []string{"route", "code"})
)

func init() {
	prometheus.MustRegister(
		UpdatesTotal,
		CallbackAcksTotal,
		AdminRejectionsTotal,
		BotAPIErrorsTotal,
		StoreErrorsTotal,

		SnapshotsTotal,
		SinkWritesTotal,

		HTTPRequestsTotal,
	)
}
