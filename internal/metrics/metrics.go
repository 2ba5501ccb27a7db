package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "demoweb",
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Login attempts by outcome.",
	}, []string{"result"})

	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "demoweb",
		Subsystem: "auth",
		Name:      "refreshes_total",
		Help:      "Refresh-token rotations by outcome.",
	}, []string{"result"})

	ReuseRevocations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "demoweb",
		Subsystem: "auth",
		Name:      "reuse_revocations_total",
		Help:      "Times a consumed refresh token was presented again, triggering revocation of all of the user's sessions.",
	})

	Logouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "demoweb",
		Subsystem: "auth",
		Name:      "logouts_total",
		Help:      "Successful logouts.",
	})

	SweptTokens = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "demoweb",
		Subsystem: "auth",
		Name:      "swept_tokens_total",
		Help:      "Expired refresh-token rows removed by the background sweeper.",
	})
)

const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)
