package middleware

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/services"
	"github.com/gofiber/fiber/v2"
)

const reviewerKey = "reviewer"

// AdminRequired lets a request through when any of these match:
// the X-Admin-Token header, the configured admin emails or user ids, or a
// row in the admins table. The reviewer identity is stored for handlers.
func AdminRequired(admins *services.AdminService, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reviewer, ok, err := IsAdmin(c, admins, cfg)
		if err != nil {
			return err
		}
		if ok {
			c.Locals(reviewerKey, reviewer)
			return c.Next()
		}
		if _, authed := CurrentUser(c); !authed {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "Admin access required",
		})
	}
}

// IsAdmin reports whether the caller has review rights and, if so, the
// identity to record as reviewer.
func IsAdmin(c *fiber.Ctx, admins *services.AdminService, cfg *config.Config) (string, bool, error) {
	if cfg.AdminToken != "" && c.Get("X-Admin-Token") == cfg.AdminToken {
		return "admin-token", true, nil
	}

	user, ok := CurrentUser(c)
	if !ok {
		return "", false, nil
	}
	reviewer := user.Email
	if reviewer == "" {
		reviewer = user.UserID.String()
	}

	if contains(parseCSV(cfg.AdminEmails), strings.ToLower(user.Email)) ||
		contains(parseCSV(cfg.AdminUserIDs), user.UserID.String()) {
		return reviewer, true, nil
	}

	admin, err := admins.Lookup(c.UserContext(), user.UserID)
	if err != nil {
		return "", false, err
	}
	return reviewer, admin != nil, nil
}

// Reviewer is the admin identity recorded on reviews.
func Reviewer(c *fiber.Ctx) string {
	if r, ok := c.Locals(reviewerKey).(string); ok {
		return r
	}
	return ""
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(p))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
