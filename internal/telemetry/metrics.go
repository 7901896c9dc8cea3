package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "gossip_node"

// Metrics groups the node counters under one registry so several nodes can
// live in one process (tests run whole clusters in memory).
type Metrics struct {
	Registry *prometheus.Registry

	MessagesHandled *prometheus.CounterVec
	RPCsSent        prometheus.Counter
	RPCTimeouts     prometheus.Counter
	RPCErrors       *prometheus.CounterVec
	RetriesEnqueued prometheus.Counter
	RetriesResent   prometheus.Counter
	ValuesSeen      prometheus.Counter
	uptime          prometheus.GaugeFunc
}

func NewMetrics() *Metrics {
	startTime := time.Now()
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		MessagesHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_handled_total",
				Help:      "Inbound requests dispatched, by message type.",
			},
			[]string{"type"},
		),
		RPCsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpcs_sent_total",
			Help:      "Outbound RPCs registered and sent.",
		}),
		RPCTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_timeouts_total",
			Help:      "RPCs still unresolved when their timeout check fired.",
		}),
		RPCErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_errors_total",
				Help:      "RPCs resolved with an error reply, by error code.",
			},
			[]string{"code"},
		),
		RetriesEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_enqueued_total",
			Help:      "Values queued for redelivery.",
		}),
		RetriesResent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_resent_total",
			Help:      "Queued values sent again after a drain.",
		}),
		ValuesSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "values_seen_total",
			Help:      "Distinct broadcast values accepted by this node.",
		}),
	}
	m.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
	m.Registry.MustRegister(m.MessagesHandled, m.RPCsSent, m.RPCTimeouts, m.RPCErrors,
		m.RetriesEnqueued, m.RetriesResent, m.ValuesSeen, m.uptime)
	return m
}

func (m *Metrics) ObserveRPCError(code int) {
	m.RPCErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}

// MetricsHandler exposes the registry in the Prometheus text format.
func (m *Metrics) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics listener on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics listener shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("metrics listener started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
