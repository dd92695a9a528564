package handler

import (
	"bytes"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/tao2825/library-borrow-system/internal/service"
)

type ReportHandler struct {
	service service.ReportService
}

func NewReportHandler(s service.ReportService) *ReportHandler {
	return &ReportHandler{service: s}
}

// GetSummary returns book counts per status
func (h *ReportHandler) GetSummary(c *fiber.Ctx) error {
	data, err := h.service.BookStatusSummary(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": data})
}

// GetMonthly returns transactions opened per month
// Query params: from, to (YYYY-MM-DD, inclusive)
func (h *ReportHandler) GetMonthly(c *fiber.Ctx) error {
	from, to := c.Query("from"), c.Query("to")
	data, err := h.service.MonthlyBorrowCounts(c.UserContext(), from, to)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"from": from, "to": to, "data": data})
}

// GetLedger returns borrow items joined with member, book and staff
// Query params: from, to (YYYY-MM-DD), status (all/borrowed/returned), format (json/csv)
func (h *ReportHandler) GetLedger(c *fiber.Ctx) error {
	from, to, status := c.Query("from"), c.Query("to"), c.Query("status", "all")

	if c.Query("format") == "csv" {
		var buf bytes.Buffer
		if _, err := h.service.WriteLedgerCSV(c.UserContext(), &buf, from, to, status); err != nil {
			return respondError(c, err)
		}
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="ledger-%s.csv"`, status))
		return c.Send(buf.Bytes())
	}

	data, err := h.service.Ledger(c.UserContext(), from, to, status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"count": len(data), "data": data})
}

// GetHistory returns the most recent borrow items
// Query params: limit (default 200)
func (h *ReportHandler) GetHistory(c *fiber.Ctx) error {
	data, err := h.service.History(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"count": len(data), "data": data})
}

// GetDashboard returns overview statistics
func (h *ReportHandler) GetDashboard(c *fiber.Ctx) error {
	stats, err := h.service.Dashboard(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}
