package serverutils

import (
	"errors"

	"kb-assistant-be/internal/repository/contract"
	"kb-assistant-be/pkg/chat/orchestrator"
	"kb-assistant-be/pkg/chat/selection"
	"kb-assistant-be/pkg/chat/state"
	"kb-assistant-be/pkg/upstream"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by handlers into the standard
// response envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var verr *ValidationError
		if errors.As(err, &verr) {
			return ctx.Status(fiber.StatusBadRequest).JSON(ErrorResponseWithData(fiber.StatusBadRequest, "Validation failed", verr.Fields))
		}

		code := StatusFor(err)
		return ctx.Status(code).JSON(ErrorResponse(code, err.Error()))
	}
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	var fe *fiber.Error
	var upErr *upstream.Error

	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, orchestrator.ErrEmptyQuestion),
		errors.Is(err, orchestrator.ErrNoDocumentsSelected),
		errors.Is(err, orchestrator.ErrEmptyMessage),
		errors.Is(err, state.ErrMessageIndex),
		errors.Is(err, state.ErrNotUserMessage),
		errors.Is(err, state.ErrNotEditing),
		errors.Is(err, state.ErrEmptyEditedText),
		errors.Is(err, selection.ErrUnknownDocument):
		return fiber.StatusBadRequest
	case errors.Is(err, orchestrator.ErrBusy):
		return fiber.StatusConflict
	case errors.Is(err, orchestrator.ErrMissingCredential),
		errors.Is(err, upstream.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, contract.ErrConversationNotFound):
		return fiber.StatusNotFound
	case errors.As(err, &upErr):
		if upErr.Kind == upstream.KindTimeout {
			return fiber.StatusGatewayTimeout
		}
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
