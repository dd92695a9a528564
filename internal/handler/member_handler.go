package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tao2825/library-borrow-system/internal/middleware"
	"github.com/tao2825/library-borrow-system/internal/service"
)

type MemberHandler struct {
	service service.MemberService
}

func NewMemberHandler(s service.MemberService) *MemberHandler {
	return &MemberHandler{service: s}
}

// GetMembers lists members. Query params: active=true hides deactivated members
func (h *MemberHandler) GetMembers(c *fiber.Ctx) error {
	members, err := h.service.GetMembers(c.UserContext(), c.QueryBool("active", false))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(members)
}

func (h *MemberHandler) GetActiveMembers(c *fiber.Ctx) error {
	members, err := h.service.GetMembers(c.UserContext(), true)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(members)
}

func (h *MemberHandler) GetMember(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return invalidID(c)
	}

	member, err := h.service.GetMember(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(member)
}

func (h *MemberHandler) CreateMember(c *fiber.Ctx) error {
	var req service.MemberRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidJSON(c)
	}

	member, err := h.service.CreateMember(c.UserContext(), &req, middleware.Username(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Member created", "data": member})
}

func (h *MemberHandler) UpdateMember(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return invalidID(c)
	}

	var req service.MemberRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidJSON(c)
	}

	member, err := h.service.UpdateMember(c.UserContext(), id, &req, middleware.Username(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Member updated", "data": member})
}

func (h *MemberHandler) DeleteMember(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return invalidID(c)
	}

	if err := h.service.DeleteMember(c.UserContext(), id, middleware.Username(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Member deleted"})
}
