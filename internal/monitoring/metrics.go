package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ReferralValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_validations_total",
			Help: "Referral code validations by outcome",
		},
		[]string{"outcome"},
	)

	CommissionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commissions_recorded_total",
			Help: "Commission and credit records created",
		},
		[]string{"recipient_type"},
	)

	CommissionAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_amount_pence_total",
			Help: "Sum of recorded commission amounts in pence",
		},
		[]string{"recipient_type"},
	)

	BalanceUpdateFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "customer_balance_update_failures_total",
			Help: "Credits recorded whose balance update failed",
		},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected by the fixed-window limiter",
		},
		[]string{"endpoint"},
	)

	BalanceDriftCustomers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "customer_balance_drift_customers",
			Help: "Customers whose stored credit balance disagrees with their ledger at the last reconciliation",
		},
	)

	PortraitJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portrait_jobs_total",
			Help: "Portrait variation jobs by final status",
		},
		[]string{"status"},
	)
)
