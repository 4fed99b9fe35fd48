package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/services"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/validation"
	"github.com/gofiber/fiber/v2"
)

type ReportHandler struct {
	reports   *services.ReportService
	admins    *services.AdminService
	cfg       *config.Config
	validator *validation.Validator
}

func NewReportHandler(reports *services.ReportService, admins *services.AdminService, cfg *config.Config, v *validation.Validator) *ReportHandler {
	return &ReportHandler{reports: reports, admins: admins, cfg: cfg, validator: v}
}

// Create accepts JSON, or multipart form data with an optional "image" file.
func (h *ReportHandler) Create(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var req dto.CreateReportRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}
	in := services.CreateReportInput{RumorURL: req.RumorURL, Description: req.Description}

	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		if fh, err := c.FormFile("image"); err == nil {
			if fh.Size > int64(h.cfg.MaxImageBytes) {
				return fail(c, fiber.StatusRequestEntityTooLarge,
					fmt.Sprintf("image exceeds %d bytes", h.cfg.MaxImageBytes))
			}
			f, err := fh.Open()
			if err != nil {
				return fail(c, fiber.StatusBadRequest, "Invalid image upload")
			}
			defer f.Close()
			in.Image = f
			in.ImageName = fh.Filename
		}
	}

	report, err := h.reports.Create(c.UserContext(), services.Submitter{
		ID: user.UserID, Email: user.Email, Name: user.Name,
	}, in)
	if err != nil {
		if errors.Is(err, services.ErrInvalidReport) {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to submit report")
	}

	return c.Status(fiber.StatusCreated).JSON(report)
}

func (h *ReportHandler) Mine(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	limit, offset := pagination(c)

	reports, total, err := h.reports.ListMine(c.UserContext(), user.UserID, limit, offset)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch reports")
	}
	return c.JSON(dto.ReportListResponse{Reports: reports, Total: total, Limit: limit, Offset: offset})
}

// Get shows a report to its submitter or to an admin. Anyone else gets 404.
func (h *ReportHandler) Get(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid report ID")
	}

	report, err := h.reports.Get(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, services.ErrReportNotFound) {
			return fail(c, fiber.StatusNotFound, "Report not found")
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch report")
	}

	if report.SubmittedBy != user.UserID {
		_, admin, err := middleware.IsAdmin(c, h.admins, h.cfg)
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, "Failed to fetch report")
		}
		if !admin {
			return fail(c, fiber.StatusNotFound, "Report not found")
		}
	}
	return c.JSON(report)
}
