package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tao2825/library-borrow-system/internal/middleware"
	"github.com/tao2825/library-borrow-system/internal/service"
)

type BookHandler struct {
	service service.BookService
}

func NewBookHandler(s service.BookService) *BookHandler {
	return &BookHandler{service: s}
}

// GetBooks lists the catalog. Query params: available=true limits it to books on the shelf
func (h *BookHandler) GetBooks(c *fiber.Ctx) error {
	books, err := h.service.GetBooks(c.UserContext(), c.QueryBool("available", false))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(books)
}

func (h *BookHandler) GetAvailableBooks(c *fiber.Ctx) error {
	books, err := h.service.GetBooks(c.UserContext(), true)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(books)
}

func (h *BookHandler) GetBook(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return invalidID(c)
	}

	book, err := h.service.GetBook(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(book)
}

func (h *BookHandler) CreateBook(c *fiber.Ctx) error {
	var req service.BookRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidJSON(c)
	}

	book, err := h.service.CreateBook(c.UserContext(), &req, middleware.Username(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Book created", "data": book})
}

func (h *BookHandler) UpdateBook(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return invalidID(c)
	}

	var req service.BookRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidJSON(c)
	}

	book, err := h.service.UpdateBook(c.UserContext(), id, &req, middleware.Username(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Book updated", "data": book})
}

func (h *BookHandler) DeleteBook(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return invalidID(c)
	}

	if err := h.service.DeleteBook(c.UserContext(), id, middleware.Username(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Book deleted"})
}
