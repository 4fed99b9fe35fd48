package handlers

import (
	"errors"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: message})
}

// bind parses the body into req and runs its validate tags. A false result
// means the error response has already been written and the error is what
// writing it returned.
func bind(c *fiber.Ctx, v *validation.Validator, req interface{}) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		return false, fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	return check(c, v, req)
}

func check(c *fiber.Ctx, v *validation.Validator, req interface{}) (bool, error) {
	err := v.Validate(req)
	if err == nil {
		return true, nil
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return false, c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
			Error: true, Message: "Validation failed", Fields: verrs,
		})
	}
	return false, fail(c, fiber.StatusBadRequest, err.Error())
}

func pagination(c *fiber.Ctx) (int, int) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := strconv.Atoi(c.Query("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}
