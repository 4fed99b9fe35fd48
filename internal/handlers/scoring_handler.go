package handlers

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/scoring"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/services"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/validation"
	"github.com/gofiber/fiber/v2"
)

type ScoringHandler struct {
	scoring   *services.ScoringService
	validator *validation.Validator
}

func NewScoringHandler(s *services.ScoringService, v *validation.Validator) *ScoringHandler {
	return &ScoringHandler{scoring: s, validator: v}
}

// GetCurrent returns the active schedule. Persisted is false while the
// built-in defaults are in effect.
func (h *ScoringHandler) GetCurrent(c *fiber.Ctx) error {
	p, err := h.scoring.Current(c.UserContext())
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch scoring config")
	}
	return c.JSON(profileResponse(p))
}

func (h *ScoringHandler) PutCurrent(c *fiber.Ctx) error {
	cfg, ok, err := h.parseConfig(c)
	if !ok {
		return err
	}

	p, err := h.scoring.SaveCurrent(c.UserContext(), *cfg, middleware.Reviewer(c))
	if err != nil {
		return scoringError(c, err)
	}
	return c.JSON(profileResponse(p))
}

func (h *ScoringHandler) Profiles(c *fiber.Ctx) error {
	profiles, err := h.scoring.Profiles(c.UserContext())
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch scoring profiles")
	}
	out := make([]dto.ScoringProfileResponse, len(profiles))
	for i := range profiles {
		out[i] = profileResponse(&profiles[i])
	}
	return c.JSON(fiber.Map{"profiles": out})
}

func (h *ScoringHandler) PutProfile(c *fiber.Ctx) error {
	name := c.Params("name")
	var nameCheck struct {
		Name string `json:"name" validate:"profilename"`
	}
	nameCheck.Name = name
	if ok, err := check(c, h.validator, &nameCheck); !ok {
		return err
	}

	cfg, ok, err := h.parseConfig(c)
	if !ok {
		return err
	}

	p, err := h.scoring.SaveProfile(c.UserContext(), name, *cfg, middleware.Reviewer(c))
	if err != nil {
		return scoringError(c, err)
	}
	return c.JSON(profileResponse(p))
}

func (h *ScoringHandler) Promote(c *fiber.Ctx) error {
	p, err := h.scoring.Promote(c.UserContext(), c.Params("name"), middleware.Reviewer(c))
	if err != nil {
		return scoringError(c, err)
	}
	return c.JSON(profileResponse(p))
}

// parseConfig reads and validates a schedule. When ok is false the error
// response has already been written.
func (h *ScoringHandler) parseConfig(c *fiber.Ctx) (*scoring.Config, bool, error) {
	var req dto.ScoringConfigRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return nil, false, err
	}
	return &scoring.Config{Tiers: req.Tiers, DefaultPoints: *req.DefaultPoints}, true, nil
}

func scoringError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, scoring.ErrInvalidConfig):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrReservedProfile):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrProfileNotFound):
		return fail(c, fiber.StatusNotFound, err.Error())
	default:
		return fail(c, fiber.StatusInternalServerError, "Failed to save scoring config")
	}
}

func profileResponse(p *models.ScoringProfile) dto.ScoringProfileResponse {
	return dto.ScoringProfileResponse{
		Name:          p.Name,
		Tiers:         []int(p.Tiers),
		DefaultPoints: p.DefaultPoints,
		Version:       p.Version,
		UpdatedBy:     p.UpdatedBy,
		Persisted:     p.Version > 0,
	}
}
