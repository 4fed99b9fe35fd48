package handlers

import (
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/services"
	"github.com/gofiber/fiber/v2"
)

type FanoutHandler struct {
	fanout *services.FanoutService
}

func NewFanoutHandler(f *services.FanoutService) *FanoutHandler {
	return &FanoutHandler{fanout: f}
}

func (h *FanoutHandler) Failures(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	unresolved := c.QueryBool("unresolved", true)

	failures, total, err := h.fanout.ListFailures(c.UserContext(), unresolved, limit, offset)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch broadcast failures")
	}
	return c.JSON(fiber.Map{"failures": failures, "total": total, "limit": limit, "offset": offset})
}

func (h *FanoutHandler) Retry(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 500)

	res, err := h.fanout.RetryFailures(c.UserContext(), limit)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to retry broadcast failures")
	}
	return c.JSON(dto.FanoutRetryResponse{
		Attempted: res.Attempted,
		Resolved:  res.Resolved,
		Failed:    res.Failed,
	})
}
