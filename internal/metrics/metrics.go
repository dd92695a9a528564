package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "library_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	circulationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "library_circulation_duration_seconds",
		Help:    "Duration of circulation operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "result"})

	booksBorrowed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "library_books_borrowed_total",
		Help: "Borrow items created",
	})

	itemReturns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_item_returns_total",
		Help: "Return attempts by outcome",
	}, []string{"result"})

	transactionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "library_transactions_closed_total",
		Help: "Borrow transactions closed by their last return",
	})

	booksOnLoan = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "library_books_on_loan",
		Help: "Books currently on loan as of the last dashboard read",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveCirculation records one engine call with result ok, rejected or error.
func ObserveCirculation(operation, result string, duration time.Duration) {
	circulationDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
}

func AddBorrowed(n int) {
	booksBorrowed.Add(float64(n))
}

// ObserveReturn counts a return attempt: returned, skipped or error.
func ObserveReturn(result string) {
	itemReturns.WithLabelValues(result).Inc()
}

func IncrementClosed() {
	transactionsClosed.Inc()
}

func SetOnLoan(n int64) {
	booksOnLoan.Set(float64(n))
}

// Middleware records request count and latency per matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		ObserveHTTPRequest(c.Method(), c.Route().Path, strconv.Itoa(status), time.Since(start))
		return err
	}
}
