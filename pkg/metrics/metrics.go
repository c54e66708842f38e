package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Metrics holds Prometheus metrics for the game service
type Metrics struct {
	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight *prometheus.GaugeVec
	DBConnPoolStats  *prometheus.GaugeVec

	SessionsJoined    *prometheus.CounterVec
	AnswersSubmitted  *prometheus.CounterVec
	WalletAdjustments *prometheus.CounterVec
	FraudFlags        *prometheus.CounterVec
	PeriodsFinalized  prometheus.Counter
	WinnersCreated    prometheus.Counter
}

// NewMetrics creates a new metrics instance
func NewMetrics(serviceName string) *Metrics {
	return &Metrics{
		RequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onetrivia",
				Subsystem: serviceName,
				Name:      "requests_total",
				Help:      "Total number of requests",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "onetrivia",
				Subsystem: serviceName,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RequestsInFlight: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "onetrivia",
				Subsystem: serviceName,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
			[]string{"method"},
		),
		DBConnPoolStats: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "onetrivia",
				Subsystem: serviceName,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"stat"},
		),
		SessionsJoined: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onetrivia",
				Subsystem: serviceName,
				Name:      "sessions_joined_total",
				Help:      "Total number of game sessions joined, by mode type",
			},
			[]string{"mode"},
		),
		AnswersSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onetrivia",
				Subsystem: serviceName,
				Name:      "answers_submitted_total",
				Help:      "Total number of answers submitted, by result",
			},
			[]string{"result"}, // correct, wrong, skipped
		),
		WalletAdjustments: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onetrivia",
				Subsystem: serviceName,
				Name:      "wallet_adjustments_total",
				Help:      "Total number of wallet balance adjustments, by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		FraudFlags: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onetrivia",
				Subsystem: serviceName,
				Name:      "fraud_flags_total",
				Help:      "Total number of fraud signals fired during finalization",
			},
			[]string{"reason"},
		),
		PeriodsFinalized: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "onetrivia",
				Subsystem: serviceName,
				Name:      "periods_finalized_total",
				Help:      "Total number of periods finalized",
			},
		),
		WinnersCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "onetrivia",
				Subsystem: serviceName,
				Name:      "winners_created_total",
				Help:      "Total number of winner records created",
			},
		),
	}
}

// UnaryServerInterceptor returns a new unary server interceptor for metrics
func UnaryServerInterceptor(metrics *Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		method := info.FullMethod

		metrics.RequestsInFlight.WithLabelValues(method).Inc()
		defer metrics.RequestsInFlight.WithLabelValues(method).Dec()

		start := time.Now()
		defer func() {
			duration := time.Since(start).Seconds()
			metrics.RequestDuration.WithLabelValues(method).Observe(duration)
		}()

		resp, err := handler(ctx, req)

		statusCode := "ok"
		if err != nil {
			st, _ := status.FromError(err)
			statusCode = st.Code().String()
		}
		metrics.RequestCounter.WithLabelValues(method, statusCode).Inc()

		return resp, err
	}
}

// StreamServerInterceptor returns a new stream server interceptor for metrics
func StreamServerInterceptor(metrics *Metrics) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		method := info.FullMethod

		metrics.RequestsInFlight.WithLabelValues(method).Inc()
		defer metrics.RequestsInFlight.WithLabelValues(method).Dec()

		start := time.Now()
		defer func() {
			duration := time.Since(start).Seconds()
			metrics.RequestDuration.WithLabelValues(method).Observe(duration)
		}()

		err := handler(srv, stream)

		statusCode := "ok"
		if err != nil {
			st, _ := status.FromError(err)
			statusCode = st.Code().String()
		}
		metrics.RequestCounter.WithLabelValues(method, statusCode).Inc()

		return err
	}
}

// RecordDBPoolStats records database connection pool statistics
func (m *Metrics) RecordDBPoolStats(open, inUse, idle int, waitCount int64, waitDuration time.Duration) {
	m.DBConnPoolStats.WithLabelValues("open").Set(float64(open))
	m.DBConnPoolStats.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnPoolStats.WithLabelValues("idle").Set(float64(idle))
	m.DBConnPoolStats.WithLabelValues("wait_count").Set(float64(waitCount))
	m.DBConnPoolStats.WithLabelValues("wait_duration_ms").Set(float64(waitDuration.Milliseconds()))
}
