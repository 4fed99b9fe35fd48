package handlers

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/database"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/dto"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check reports 200 while the database answers and 503 otherwise.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := fiber.StatusOK
	resp := dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        "ok",
	}
	if err := database.PingDB(h.db); err != nil {
		status = fiber.StatusServiceUnavailable
		resp.Status = "degraded"
		resp.DB = "unhealthy: " + err.Error()
	}
	return c.Status(status).JSON(resp)
}
