package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/journey-tracker/internal/pkg/errors"
)

func journeyIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, errors.ErrInvalidRequest.WithMessage("invalid journey id")
	}
	return id, nil
}

func invalidBody(err error) error {
	return errors.ErrInvalidRequest.WithMessage("Invalid request body: " + err.Error())
}
