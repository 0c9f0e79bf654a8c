package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(gatewayCallSeconds, gatewayAttemptsTotal) }

var gatewayCallSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "model_gateway_call_seconds",
		Help:    "Whole-call latency of model gateway calls, retries included.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	},
	[]string{"stage", "protocol", "success"},
)

var gatewayAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "model_gateway_attempts_total",
		Help: "Individual network attempts per stage, labeled by outcome.",
	},
	[]string{"stage", "outcome"}, // 'ok', 'error'
)

func ObserveGatewayCall(stage, protocol string, seconds float64, success bool) {
	gatewayCallSeconds.WithLabelValues(stage, protocol, strconv.FormatBool(success)).Observe(seconds)
}

func IncGatewayAttempt(stage, outcome string) {
	gatewayAttemptsTotal.WithLabelValues(stage, outcome).Inc()
}
