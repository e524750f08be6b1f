package kit

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"beacon-presence-api/internal/docstore"
	"beacon-presence-api/internal/presence"
	"beacon-presence-api/internal/route"
)

// APIError is a structured application error with code and message.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

func NewAPIError(httpStatus int, code, msg string, details any) *APIError {
	return &APIError{HTTPStatus: httpStatus, Code: code, Message: msg, Details: details}
}

func BadRequest(msg string, details any) error {
	return NewAPIError(http.StatusBadRequest, "E_INVALID_PARAM", msg, details)
}

func NotFound(msg string) error { return NewAPIError(http.StatusNotFound, "E_NOT_FOUND", msg, nil) }

func Conflict(msg string) error { return NewAPIError(http.StatusConflict, "E_CONFLICT", msg, nil) }

func InternalError(msg string, details any) error {
	return NewAPIError(http.StatusInternalServerError, "E_INTERNAL", msg, details)
}

// FromDomain maps engine errors onto API errors. Unknown errors become
// E_INTERNAL without leaking their text.
func FromDomain(err error) error {
	var ae *APIError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, presence.ErrInvalidDetection),
		errors.Is(err, presence.ErrInvalidAttributes),
		errors.Is(err, presence.ErrInvalidDay),
		errors.Is(err, presence.ErrInvalidLocation),
		errors.Is(err, route.ErrTooManyStops):
		return BadRequest(err.Error(), nil)
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, presence.ErrUnknownLocation):
		return NotFound(err.Error())
	case errors.Is(err, docstore.ErrConflict):
		return Conflict("concurrent update, retry the request")
	default:
		return InternalError("internal error", nil)
	}
}

// ErrorHandler returns a Fiber error handler that emits unified error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"code":       httpStatusToCode(fe.Code),
				"message":    fe.Message,
				"request_id": RequestID(c),
			})
		}

		var ae *APIError
		if errors.As(FromDomain(err), &ae) {
			body := fiber.Map{
				"code":       ae.Code,
				"message":    ae.Message,
				"request_id": RequestID(c),
			}
			if ae.Details != nil {
				body["details"] = ae.Details
			}
			return c.Status(ae.HTTPStatus).JSON(body)
		}

		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"code":       "E_INTERNAL",
			"message":    "Internal Server Error",
			"request_id": RequestID(c),
		})
	}
}

func httpStatusToCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "E_INVALID_PARAM"
	case http.StatusNotFound:
		return "E_NOT_FOUND"
	case http.StatusConflict:
		return "E_CONFLICT"
	case http.StatusTooManyRequests:
		return "E_RATE_LIMITED"
	default:
		if status >= 500 {
			return "E_INTERNAL"
		}
		return "E_UNKNOWN"
	}
}
