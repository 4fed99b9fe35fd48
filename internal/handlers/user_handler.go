package handlers

import (
	"errors"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/services"
	"github.com/gofiber/fiber/v2"
)

type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) Me(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	u, err := h.users.Get(c.UserContext(), user.UserID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return fail(c, fiber.StatusNotFound, "User not found")
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch user")
	}
	return c.JSON(u)
}

func (h *UserHandler) Ledger(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	limit, offset := pagination(c)
	entries, total, err := h.users.Ledger(c.UserContext(), user.UserID, limit, offset)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch ledger")
	}
	return c.JSON(dto.LedgerResponse{Entries: entries, Total: total, Limit: limit, Offset: offset})
}

func (h *UserHandler) Leaderboard(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 || limit > maxPageSize {
		limit = 10
	}
	entries, err := h.users.Leaderboard(c.UserContext(), limit)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch leaderboard")
	}
	return c.JSON(fiber.Map{"leaderboard": entries})
}
