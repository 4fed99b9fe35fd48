package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const streamKeepAlive = 25 * time.Second

type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(n *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: n}
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	limit, offset := pagination(c)
	unreadOnly := c.QueryBool("unread", false)

	notes, total, err := h.notifications.List(c.UserContext(), user.UserID, unreadOnly, limit, offset)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch notifications")
	}
	unread, err := h.notifications.UnreadCount(c.UserContext(), user.UserID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch notifications")
	}
	return c.JSON(dto.NotificationListResponse{
		Notifications: notes,
		Total:         total,
		Unread:        unread,
		Limit:         limit,
		Offset:        offset,
	})
}

func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	n, err := h.notifications.UnreadCount(c.UserContext(), user.UserID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to count notifications")
	}
	return c.JSON(fiber.Map{"unread": n})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid notification ID")
	}
	if err := h.notifications.MarkRead(c.UserContext(), user.UserID, id); err != nil {
		if errors.Is(err, services.ErrNotificationNotFound) {
			return fail(c, fiber.StatusNotFound, "Notification not found")
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to update notification")
	}
	return c.JSON(fiber.Map{"message": "Notification marked as read"})
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	n, err := h.notifications.MarkAllRead(c.UserContext(), user.UserID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update notifications")
	}
	return c.JSON(fiber.Map{"updated": n})
}

func (h *NotificationHandler) Delete(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid notification ID")
	}
	if err := h.notifications.Delete(c.UserContext(), user.UserID, id); err != nil {
		if errors.Is(err, services.ErrNotificationNotFound) {
			return fail(c, fiber.StatusNotFound, "Notification not found")
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to delete notification")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Stream pushes new notifications as Server-Sent Events until the client
// goes away.
func (h *NotificationHandler) Stream(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, unsubscribe, err := h.notifications.Subscribe(ctx, user.UserID)
	if err != nil {
		cancel()
		slog.Error("notification stream unavailable", "user_id", user.UserID.String(), "error", err)
		return fail(c, fiber.StatusServiceUnavailable, "Live notifications unavailable")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer unsubscribe()

		ticker := time.NewTicker(streamKeepAlive)
		defer ticker.Stop()

		fmt.Fprint(w, ": connected\n\n")
		if err := w.Flush(); err != nil {
			return
		}
		for {
			select {
			case n, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(n)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", n.ID, data)
				if err := w.Flush(); err != nil {
					return
				}
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))
	return nil
}
