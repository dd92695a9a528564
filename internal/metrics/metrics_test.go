package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByRoute(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware())
	app.Get("/books/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	before := value(httpRequestsTotal.WithLabelValues("GET", "/books/:id", "204"))

	resp, err := app.Test(httptest.NewRequest("GET", "/books/12", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	after := value(httpRequestsTotal.WithLabelValues("GET", "/books/:id", "204"))
	assert.Equal(t, before+1, after)
}

func TestCirculationCounters(t *testing.T) {
	before := value(itemReturns.WithLabelValues("skipped"))
	ObserveReturn("skipped")
	assert.Equal(t, before+1, value(itemReturns.WithLabelValues("skipped")))

	b := value(booksBorrowed)
	AddBorrowed(2)
	assert.Equal(t, b+2, value(booksBorrowed))

	SetOnLoan(5)
	assert.Equal(t, float64(5), value(booksOnLoan))

	ObserveCirculation("borrow", "ok", time.Millisecond)
}

func value(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		return -1
	}
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	return out.Gauge.GetValue()
}
