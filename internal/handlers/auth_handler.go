package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/services"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/validation"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService *services.AuthService
	validator   *validation.Validator
}

func NewAuthHandler(authService *services.AuthService, v *validation.Validator) *AuthHandler {
	return &AuthHandler{authService: authService, validator: v}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	resp, err := h.authService.Register(c.UserContext(), &req)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			return fail(c, fiber.StatusConflict, err.Error())
		}
		slog.Error("register failed", "action", "register", "error", err)
		return fail(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	resp, err := h.authService.Login(c.UserContext(), &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return fail(c, fiber.StatusUnauthorized, err.Error())
		}
		return fail(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return c.JSON(resp)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	resp, err := h.authService.Refresh(c.UserContext(), &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidToken) || errors.Is(err, services.ErrUserNotFound) {
			return fail(c, fiber.StatusUnauthorized, services.ErrInvalidToken.Error())
		}
		return fail(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return c.JSON(resp)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	var req dto.LogoutRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	if err := h.authService.Logout(c.UserContext(), user.UserID, &req); err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to logout")
	}

	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}
