package services

import (
	"sync/atomic"
	"time"

	"tunnel-keeper/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnel_keeper_request_total",
			Help: "Total API requests",
		},
		[]string{"path"},
	)

	requestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnel_keeper_request_errors_total",
			Help: "API requests answered with status >= 400",
		},
		[]string{"path"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tunnel_keeper_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	tunnelStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tunnel_keeper_tunnels",
			Help: "Number of tunnels per lifecycle state",
		},
		[]string{"state"},
	)

	tunnelTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnel_keeper_transitions_total",
			Help: "Tunnel state transitions",
		},
		[]string{"from", "to"},
	)

	reconnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnel_keeper_reconnects_total",
			Help: "Automatic reconnect decisions, result is retry or exhausted",
		},
		[]string{"result"},
	)

	launchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnel_keeper_launch_failures_total",
			Help: "Failed bastion or ssh launches",
		},
		[]string{"stage", "reason"},
	)

	probeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnel_keeper_probe_errors_total",
			Help: "Port owner lookups whose OS command failed and were treated as not found",
		},
		[]string{"kind"},
	)

	// 本地计数器，供健康检查接口读取
	totalRequests int64
	totalErrors   int64
)

func init() {
	prometheus.MustRegister(requestCount, requestErrors, requestDuration)
	prometheus.MustRegister(tunnelStates, tunnelTransitions, reconnectAttempts, launchFailures, probeErrors)
}

// RecordRequest 记录一次API请求
func RecordRequest(path string, status int, duration time.Duration) {
	atomic.AddInt64(&totalRequests, 1)
	requestCount.WithLabelValues(path).Inc()
	requestDuration.WithLabelValues(path).Observe(duration.Seconds())
	if status >= 400 {
		atomic.AddInt64(&totalErrors, 1)
		requestErrors.WithLabelValues(path).Inc()
	}
}

func GetTotalRequestCount() int64 {
	return atomic.LoadInt64(&totalRequests)
}

func GetTotalErrorCount() int64 {
	return atomic.LoadInt64(&totalErrors)
}

// observeStates 用当前隧道列表刷新状态分布
func observeStates(tunnels []models.Tunnel) {
	counts := make(map[models.TunnelState]int, len(models.AllStates))
	for _, t := range tunnels {
		counts[t.State]++
	}
	for _, st := range models.AllStates {
		tunnelStates.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}

func observeTransition(from, to models.TunnelState) {
	tunnelTransitions.WithLabelValues(string(from), string(to)).Inc()
}
