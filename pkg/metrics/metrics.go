package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Authorization flow metrics, keyed by outcome (begun, completed,
	// state_mismatch, exchange_failed)
	AuthorizationFlows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "account_authorization_flows_total",
		Help: "Total number of authorization flow transitions grouped by outcome",
	}, []string{"outcome"})
	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "account_token_refreshes_total",
		Help: "Total number of access token refresh attempts",
	}, []string{"result"})

	StatePersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "account_state_persisted_total",
		Help: "Total number of account snapshots handed to the persister",
	}, []string{"result"})

	// Device command metrics
	CommandPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "account_command_polls_total",
		Help: "Total number of device command polls grouped by result",
	}, []string{"result"})
	DeviceCommandsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "account_device_commands_received_total",
		Help: "Total number of device commands received grouped by command name",
	}, []string{"command"})

	// Remote API metrics. Endpoint labels are the logical endpoint (token,
	// profile, commands), never the full URL.
	RemoteRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "account_remote_requests_total",
		Help: "Total number of requests to the authorization server",
	}, []string{"endpoint", "status"})
	RemoteRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "account_remote_request_duration_seconds",
		Help:    "Latency of requests to the authorization server",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// Audit metrics
	AuditEventsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "account_audit_events_written_total",
		Help: "Total number of audit events written grouped by sink",
	}, []string{"sink"})
	AuditEventsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "account_audit_events_failed_total",
		Help: "Total number of audit events a sink failed to write",
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(AuthorizationFlows)
	prometheus.MustRegister(TokenRefreshes)
	prometheus.MustRegister(StatePersisted)
	prometheus.MustRegister(CommandPolls)
	prometheus.MustRegister(DeviceCommandsReceived)
	prometheus.MustRegister(RemoteRequests)
	prometheus.MustRegister(RemoteRequestDuration)
	prometheus.MustRegister(AuditEventsWritten)
	prometheus.MustRegister(AuditEventsFailed)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
