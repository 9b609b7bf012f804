package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/postbridge/postbridge/internal/apperror"
)

func GetWorkspaceID(c *fiber.Ctx) int64 {
	workspaceID, _ := strconv.Atoi(c.Locals("workspace_id").(string))
	return int64(workspaceID)
}

// errorResponse maps the error taxonomy onto HTTP statuses. Untagged errors
// surface as 500 without leaking internals.
func errorResponse(c *fiber.Ctx, err error) error {
	var ae *apperror.Error
	if !errors.As(err, &ae) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "something went wrong",
		})
	}

	status := fiber.StatusInternalServerError
	switch ae.Kind {
	case apperror.KindValidation:
		status = fiber.StatusBadRequest
	case apperror.KindNotFound:
		status = fiber.StatusNotFound
	case apperror.KindConflict:
		status = fiber.StatusConflict
	case apperror.KindExternalAuth, apperror.KindReauthRequired:
		status = fiber.StatusUnauthorized
	case apperror.KindTransientPlatform, apperror.KindTerminalPlatform:
		status = fiber.StatusBadGateway
	}

	body := fiber.Map{"error": ae.Message}
	if ae.Field != "" {
		body["field"] = ae.Field
	}
	return c.Status(status).JSON(body)
}
