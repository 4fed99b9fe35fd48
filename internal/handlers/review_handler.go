package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/services"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/validation"
	"github.com/gofiber/fiber/v2"
)

// ReviewHandler is the moderation panel: the queue, previews and decisions.
type ReviewHandler struct {
	reports   *services.ReportService
	reviews   *services.ReviewService
	validator *validation.Validator
}

func NewReviewHandler(reports *services.ReportService, reviews *services.ReviewService, v *validation.Validator) *ReviewHandler {
	return &ReviewHandler{reports: reports, reviews: reviews, validator: v}
}

func (h *ReviewHandler) List(c *fiber.Ctx) error {
	status := models.ReportStatus(c.Query("status", string(models.ReportPending)))
	switch status {
	case "all":
		status = ""
	case models.ReportPending, models.ReportApproved, models.ReportRejected:
	default:
		return fail(c, fiber.StatusBadRequest, "status must be pending, approved, rejected or all")
	}
	limit, offset := pagination(c)

	reports, total, err := h.reports.List(c.UserContext(), status, limit, offset)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch reports")
	}
	return c.JSON(dto.ReportListResponse{Reports: reports, Total: total, Limit: limit, Offset: offset})
}

func (h *ReviewHandler) Preview(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid report ID")
	}

	p, err := h.reviews.Preview(c.UserContext(), id)
	if err != nil {
		return reviewError(c, err)
	}
	return c.JSON(dto.ReviewPreviewResponse{
		ReportID:         p.ReportID.String(),
		Status:           p.Status,
		Rank:             p.Rank,
		Points:           p.Points,
		CompetingReports: p.CompetingReports,
		Config:           p.Config,
	})
}

func (h *ReviewHandler) Review(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid report ID")
	}
	var req dto.ReviewRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	result, err := h.reviews.Review(c.UserContext(), id, services.ReviewInput{
		Decision: models.ReportStatus(req.Decision),
		Reviewer: middleware.Reviewer(c),
		Notes:    req.Notes,
	})
	if err != nil {
		return reviewError(c, err)
	}
	return c.JSON(dto.ReviewResponse{
		Report:        result.Report,
		PointsAwarded: result.PointsAwarded,
		Rank:          result.Rank,
	})
}

func (h *ReviewHandler) UpdateNotes(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid report ID")
	}
	var req dto.AdminNotesRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	report, err := h.reviews.UpdateAdminNotes(c.UserContext(), id, req.Notes, middleware.Reviewer(c))
	if err != nil {
		return reviewError(c, err)
	}
	return c.JSON(report)
}

func reviewError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrReportNotFound):
		return fail(c, fiber.StatusNotFound, "Report not found")
	case errors.Is(err, services.ErrAlreadyReviewed):
		return fail(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidDecision):
		return fail(c, fiber.StatusBadRequest, err.Error())
	default:
		slog.Error("review request failed", "path", c.Path(), "error", err)
		return fail(c, fiber.StatusInternalServerError, "Internal server error")
	}
}
