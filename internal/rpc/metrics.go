package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/OKaluzny/evm-account/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values of RequestsTotal.
const (
	outcomeOK       = "ok"
	outcomeRPCError = "rpc_error"
	outcomeError    = "error"
	outcomeCanceled = "canceled"
)

var (
	// RequestsTotal counts JSON-RPC calls by method and outcome.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evm_rpc_requests_total",
			Help: "Total number of JSON-RPC requests sent to the node.",
		},
		[]string{"method", "outcome"},
	)

	// RequestDuration records JSON-RPC round trip latency.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evm_rpc_request_duration_seconds",
			Help:    "JSON-RPC request latency distributions.",
			Buckets: []float64{0.05, 0.1, 0.3, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"method"},
	)
)

// RegisterMetrics registers the RPC collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{RequestsTotal, RequestDuration} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func observe(method string, start time.Time, err error) {
	RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	RequestsTotal.WithLabelValues(method, outcome(err)).Inc()
}

func outcome(err error) string {
	var rpcErr *models.RPCError
	switch {
	case err == nil:
		return outcomeOK
	case errors.As(err, &rpcErr):
		return outcomeRPCError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	default:
		return outcomeError
	}
}
