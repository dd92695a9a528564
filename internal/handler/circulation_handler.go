package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tao2825/library-borrow-system/internal/middleware"
	"github.com/tao2825/library-borrow-system/internal/service"
)

type CirculationHandler struct {
	service service.CirculationService
}

func NewCirculationHandler(s service.CirculationService) *CirculationHandler {
	return &CirculationHandler{service: s}
}

// ReturnItemsRequest is the body of a batch return
type ReturnItemsRequest struct {
	ItemIDs []uint `json:"item_ids"`
}

// CreateBorrow lends books to a member
// POST /api/v1/borrows
func (h *CirculationHandler) CreateBorrow(c *fiber.Ctx) error {
	var req service.BorrowRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidJSON(c)
	}

	txID, err := h.service.CreateBorrowTransaction(c.UserContext(), &req, middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Borrow recorded", "tx_id": txID})
}

// GetTransaction returns a borrow transaction with its items
// GET /api/v1/borrows/:id
func (h *CirculationHandler) GetTransaction(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return invalidID(c)
	}

	tx, err := h.service.GetTransaction(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tx)
}

// GetActiveItems lists books still out. Query params: member_id narrows it to one member
// GET /api/v1/borrows/active
func (h *CirculationHandler) GetActiveItems(c *fiber.Ctx) error {
	memberID := c.QueryInt("member_id", 0)
	if memberID < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid member_id"})
	}

	items, err := h.service.ActiveItems(c.UserContext(), uint(memberID))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(items)
}

// ReturnItem returns a single borrowed item
// POST /api/v1/borrows/items/:id/return
func (h *CirculationHandler) ReturnItem(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return invalidID(c)
	}

	ok, err := h.service.ReturnItem(c.UserContext(), id, middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	if !ok {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Item is not on loan", "returned": false})
	}
	return c.JSON(fiber.Map{"message": "Item returned", "returned": true})
}

// ReturnItems returns several items, each on its own
// POST /api/v1/borrows/items/return
func (h *CirculationHandler) ReturnItems(c *fiber.Ctx) error {
	var req ReturnItemsRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidJSON(c)
	}

	res, err := h.service.ReturnItems(c.UserContext(), req.ItemIDs, middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}
