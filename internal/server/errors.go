package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	invoicedomain "github.com/smallbiznis/fakeacquirer/internal/invoice/domain"
	webhookdomain "github.com/smallbiznis/fakeacquirer/internal/webhook/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

var (
	ErrInternal           = errors.New("internal_error")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// bindingError converts gin binding failures into field-level validation errors.
func bindingError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, ValidationError{
				Field:   fe.Field(),
				Code:    fe.Tag(),
				Message: bindingMessage(fe),
			})
		}
		return &ValidationErrors{Errors: out}
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "request"
		}
		return newValidationError(field, "invalid_type", "expected "+typeErr.Type.String())
	}

	return invalidRequestError()
}

func bindingMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "url":
		return fe.Field() + " must be an absolute URL"
	case "oneof":
		return fe.Field() + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "invalid value"
	}
}

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{
			Error:   "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorResponse{
			Error:   "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if field, ok := domainValidationField(err); ok {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorResponse{
			Error:   "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: field, Code: code, Message: "invalid value"},
			},
		}
	}

	switch {
	case errors.Is(err, invoicedomain.ErrNotFound):
		return http.StatusNotFound, errorResponse{
			Error:   "invoice_not_found",
			Message: err.Error(),
		}
	case errors.Is(err, webhookdomain.ErrDeliveryNotFound):
		return http.StatusNotFound, errorResponse{
			Error:   "delivery_not_found",
			Message: err.Error(),
		}
	case errors.Is(err, invoicedomain.ErrIdempotencyConflict):
		return http.StatusConflict, errorResponse{
			Error:   "idempotency_conflict",
			Message: "idempotency key is bound to an unavailable invoice",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{
			Error:   "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorResponse{
			Error:   "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorResponse{
			Error:   "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func domainValidationField(err error) (string, bool) {
	switch {
	case errors.Is(err, invoicedomain.ErrInvalidAmount):
		return "amount", true
	case errors.Is(err, invoicedomain.ErrInvalidWebhookURL):
		return "webhook_url", true
	case errors.Is(err, invoicedomain.ErrInvalidStatus):
		return "emit_status", true
	case errors.Is(err, ErrInvalidRequest):
		return "request", true
	default:
		return "", false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, invoicedomain.ErrInvalidAmount):
		return invoicedomain.ErrInvalidAmount.Error()
	case errors.Is(err, invoicedomain.ErrInvalidWebhookURL):
		return invoicedomain.ErrInvalidWebhookURL.Error()
	case errors.Is(err, invoicedomain.ErrInvalidStatus):
		return invoicedomain.ErrInvalidStatus.Error()
	default:
		return "invalid_request"
	}
}

// classifyErrorForLog returns the error type and code written to request logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status == http.StatusBadRequest && len(payload.Errors) > 0 {
		return payload.Error, payload.Errors[0].Code
	}
	return payload.Error, http.StatusText(status)
}
