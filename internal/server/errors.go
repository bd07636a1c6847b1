package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/martpos/internal/auth/domain"
	"github.com/smallbiznis/martpos/internal/authorization"
	billingdomain "github.com/smallbiznis/martpos/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/martpos/internal/catalog/domain"
	"github.com/smallbiznis/martpos/internal/observability/logger"
	scannerdomain "github.com/smallbiznis/martpos/internal/scanner/domain"
	"github.com/smallbiznis/martpos/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
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

type errorPayload struct {
	Type    string
	Message string
	Errors  []ValidationError
}

type errorBody struct {
	Type   string            `json:"type"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Error   errorBody `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrCSRFRejected       = errors.New("csrf_rejected")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// validationSentinels are the domain errors that mean "the caller sent
// something wrong". The first match names the validation code.
var validationSentinels = []error{
	ErrInvalidRequest,
	pagination.ErrInvalidPageToken,

	catalogdomain.ErrInvalidCode,
	catalogdomain.ErrInvalidName,
	catalogdomain.ErrInvalidPrice,
	catalogdomain.ErrInvalidStock,
	catalogdomain.ErrInvalidBarcode,
	catalogdomain.ErrInvalidSort,
	catalogdomain.ErrInvalidID,

	billingdomain.ErrEmptyBill,
	billingdomain.ErrTooManyLines,
	billingdomain.ErrInvalidQuantity,
	billingdomain.ErrInvalidProduct,
	billingdomain.ErrInvalidID,
	billingdomain.ErrInvalidDateRange,
	billingdomain.ErrAmountOverflow,

	scannerdomain.ErrInvalidBarcode,

	authdomain.ErrInvalidEmail,
	authdomain.ErrWeakPassword,
	authdomain.ErrInvalidRole,
}

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
		if status >= http.StatusInternalServerError {
			logger.FromContext(c.Request.Context()).Error("request failed",
				zap.String("route", c.FullPath()),
				zap.Error(lastErr.Err),
			)
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{
			Success: false,
			Message: payload.Message,
			Error:   errorBody{Type: payload.Type, Errors: payload.Errors},
		})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// respond writes the success envelope.
func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
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

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: err.Error(),
				},
			},
		}
	}

	switch {
	case isUnauthenticatedError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthenticated",
			Message: "authentication required",
		}
	case errors.Is(err, ErrCSRFRejected):
		return http.StatusForbidden, errorPayload{
			Type:    "csrf_rejected",
			Message: "cross-site request rejected",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, scannerdomain.ErrNotActive):
		return http.StatusConflict, errorPayload{
			Type:    "scanner_not_active",
			Message: "scanner is not active for this session",
		}
	case errors.Is(err, scannerdomain.ErrInvalidOrExpiredToken):
		return http.StatusGone, errorPayload{
			Type:    "invalid_or_expired_token",
			Message: "scanner link is invalid or expired",
		}
	case errors.Is(err, catalogdomain.ErrInsufficientStock):
		return http.StatusConflict, errorPayload{
			Type:    "insufficient_stock",
			Message: err.Error(),
		}
	case errors.Is(err, billingdomain.ErrProductInactive):
		return http.StatusConflict, errorPayload{
			Type:    "product_inactive",
			Message: err.Error(),
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, catalogdomain.ErrConflict),
		errors.Is(err, authdomain.ErrUserExists):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, scannerdomain.ErrQueueFull):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "scan_queue_full",
			Message: "too many pending scans",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) (string, bool) {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func isUnauthenticatedError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrUnauthenticated),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrUserDisabled),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionNotFound),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked),
		errors.Is(err, scannerdomain.ErrInvalidDesktopSession):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, billingdomain.ErrNotFound),
		errors.Is(err, authdomain.ErrUserNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_page_token":
		return "page_token"
	case "empty_bill", "too_many_lines":
		return "lines"
	case "amount_overflow", "invalid_quantity":
		return "quantity"
	case "invalid_product_id":
		return "product_id"
	case "invalid_date_range":
		return "from"
	case "password too short":
		return "password"
	case "invalid email":
		return "email"
	case "invalid role":
		return "role"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
