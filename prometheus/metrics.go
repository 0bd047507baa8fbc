package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Login counter
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_login_total",
			Help: "Total number of login attempts",
		},
	)

	// Authentication error counter
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // type can be "missing_token", "invalid_token", "token_invalidated" etc.
	)

	// Auth operation counter
	AuthOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_auth_operations_total",
			Help: "Total number of authentication operations",
		},
		[]string{"operation"}, // operation can be "logout", "password_change", "password_reset", etc.
	)

	// OTP send counter by channel
	OTPSendCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_otp_send_total",
			Help: "Total number of OTP challenges started by channel",
		},
		[]string{"channel"},
	)

	// OTP verify counter by result
	OTPVerifyCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_otp_verify_total",
			Help: "Total number of OTP verification attempts by result",
		},
		[]string{"result"}, // "approved" or "rejected"
	)

	// Directory search counter by result
	SearchCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_search_total",
			Help: "Total number of directory lookups by result",
		},
		[]string{"result"}, // "found" or "not_found"
	)

	// Redirect counter
	RedirectCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_redirect_total",
			Help: "Total number of messaging link redirects served",
		},
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "support_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "support_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // operation can be "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	// Active tokens. Approximate by construction: logins increment and only
	// explicit logouts decrement, so tokens dropped by expiry or a
	// token-version bump are not subtracted.
	ActiveTokensGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_active_tokens",
			Help: "Approximate number of active access tokens (logins minus explicit logouts)",
		},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "support_info",
			Help: "Information about the customer support directory service",
		},
		[]string{"version"},
	)
)

func init() {
	// Register counters
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(AuthOperationCounter)
	prometheus.MustRegister(OTPSendCounter)
	prometheus.MustRegister(OTPVerifyCounter)
	prometheus.MustRegister(SearchCounter)
	prometheus.MustRegister(RedirectCounter)
	prometheus.MustRegister(HTTPRequestCounter)

	// Register histograms
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	// Register gauges
	prometheus.MustRegister(ActiveTokensGauge)
	prometheus.MustRegister(InfoGauge)

	// Set initial service info
	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Execute the request handler
			err := next(c)

			// Record request duration
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// IncreaseActiveTokens increments the active tokens gauge
func IncreaseActiveTokens() {
	ActiveTokensGauge.Inc()
}

// DecreaseActiveTokens decrements the active tokens gauge
func DecreaseActiveTokens() {
	ActiveTokensGauge.Dec()
}

// RecordAuthError records an authentication error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordAuthOperation records an authentication operation by type
func RecordAuthOperation(operation string) {
	AuthOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordOTPSend records an OTP challenge start by channel
func RecordOTPSend(channel string) {
	OTPSendCounter.With(prometheus.Labels{"channel": channel}).Inc()
}

// RecordOTPVerify records an OTP verification attempt by result
func RecordOTPVerify(result string) {
	OTPVerifyCounter.With(prometheus.Labels{"result": result}).Inc()
}

// RecordSearch records a directory lookup by result
func RecordSearch(result string) {
	SearchCounter.With(prometheus.Labels{"result": result}).Inc()
}

// RecordRedirect records a served messaging link redirect
func RecordRedirect() {
	RedirectCounter.Inc()
}
