package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/db-tech/conbee2panel/pkg/jrpcws"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOk           = "ok"
	OutcomeSent         = "sent"
	OutcomeRemoteError  = "remote_error"
	OutcomeTimeout      = "timeout"
	OutcomeNotConnected = "not_connected"
	OutcomeClosed       = "closed"
	OutcomeError        = "error"
)

type Metrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conbee2panel_rpc_requests_total",
			Help: "RPC calls issued to the controller",
		}, []string{"method", "outcome"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conbee2panel_rpc_request_duration_seconds",
			Help:    "Duration of RPC calls issued to the controller",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "outcome"}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	if err := reg.Register(m.Requests); err != nil {
		return err
	}
	return reg.Register(m.Latency)
}

func (m *Metrics) observe(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, outcome).Inc()
	m.Latency.WithLabelValues(method, outcome).Observe(d.Seconds())
}

func outcomeOf(err error) string {
	var rpcErr *jrpcws.Error
	switch {
	case err == nil:
		return OutcomeOk
	case errors.As(err, &rpcErr):
		return OutcomeRemoteError
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, jrpcws.ErrNotConnected):
		return OutcomeNotConnected
	case errors.Is(err, jrpcws.ErrConnectionClosed):
		return OutcomeClosed
	default:
		return OutcomeError
	}
}
