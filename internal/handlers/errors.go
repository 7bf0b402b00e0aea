package handlers

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/orderline-backend/internal/services"
	"github.com/Ananth-NQI/orderline-backend/internal/storage"
)

var validate = validator.New()

// ErrorHandler maps service errors to HTTP status codes.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			code = fe.Code
		case errors.Is(err, services.ErrInvalidInput):
			code = fiber.StatusBadRequest
		case errors.Is(err, services.ErrForbidden):
			code = fiber.StatusForbidden
		case errors.Is(err, services.ErrSessionNotFound),
			errors.Is(err, services.ErrOrderNotFound),
			errors.Is(err, services.ErrMerchantNotFound),
			errors.Is(err, services.ErrUnknownLine),
			errors.Is(err, storage.ErrNotFound):
			code = fiber.StatusNotFound
		case errors.Is(err, services.ErrLineNotConfigured):
			code = fiber.StatusUnprocessableEntity
		}

		if code >= fiber.StatusInternalServerError {
			log.Error("request failed",
				slog.String("method", c.Method()), slog.String("path", c.Path()), slog.Any("error", err))
		}
		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

// bind parses the JSON body into dst and validates it.
func bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}
