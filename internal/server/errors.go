package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/taskhub/internal/audit/domain"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	authoauth "github.com/smallbiznis/taskhub/internal/auth/oauth"
	"github.com/smallbiznis/taskhub/internal/authorization"
	invitationdomain "github.com/smallbiznis/taskhub/internal/invitation/domain"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
	"github.com/smallbiznis/taskhub/internal/observability/logger"
	organizationdomain "github.com/smallbiznis/taskhub/internal/organization/domain"
	taskdomain "github.com/smallbiznis/taskhub/internal/task/domain"
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

type errorResponse struct {
	Success          bool              `json:"success"`
	Error            string            `json:"error,omitempty"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid_request")
)

const internalErrorMessage = "something went wrong, please try again"

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
		if status == http.StatusInternalServerError {
			logger.FromContext(c.Request.Context()).Error("request failed",
				zap.String("route", c.FullPath()),
				zap.Error(lastErr.Err),
			)
		}
		c.Header("Content-Type", "application/json")
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

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{Error: internalErrorMessage}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorResponse{ValidationErrors: vErr.Errors}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorResponse{
			ValidationErrors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	if status, ok := expectedErrorStatus(err); ok {
		return status, errorResponse{Error: expectedErrorMessage(err)}
	}

	return http.StatusInternalServerError, errorResponse{Error: internalErrorMessage}
}

// expectedErrorStatus maps domain sentinels whose text is safe to show.
func expectedErrorStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrUnauthenticated),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked),
		errors.Is(err, authoauth.ErrUnauthorized):
		return http.StatusUnauthorized, true
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrNotAMember),
		errors.Is(err, authorization.ErrNoActiveOrganization),
		errors.Is(err, authdomain.ErrSignUpDisabled),
		errors.Is(err, authdomain.ErrEmailNotVerified),
		errors.Is(err, authoauth.ErrUnverifiedEmail):
		return http.StatusForbidden, true
	case isNotFoundError(err):
		return http.StatusNotFound, true
	case errors.Is(err, authdomain.ErrUserExists),
		errors.Is(err, organizationdomain.ErrSlugTaken),
		errors.Is(err, membershipdomain.ErrAlreadyMember),
		errors.Is(err, invitationdomain.ErrAlreadyInvited),
		errors.Is(err, invitationdomain.ErrAlreadyProcessed),
		errors.Is(err, invitationdomain.ErrAlreadyAccepted),
		errors.Is(err, invitationdomain.ErrInvitationInFlight):
		return http.StatusConflict, true
	case errors.Is(err, membershipdomain.ErrLastOwner),
		errors.Is(err, authoauth.ErrInvalidProvider):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, invitationdomain.ErrRateLimited):
		return http.StatusTooManyRequests, true
	default:
		return 0, false
	}
}

func expectedErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return authorization.ErrUnauthenticated.Error()
	case errors.Is(err, ErrForbidden):
		return authorization.ErrForbidden.Error()
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound.Error()
	}
	// Wrapped sentinels keep their own text; the wrapper may carry internals.
	for _, sentinel := range []error{
		authorization.ErrUnauthenticated,
		authorization.ErrNotAMember,
		authorization.ErrForbidden,
		authorization.ErrNoActiveOrganization,
		authdomain.ErrInvalidCredentials,
		authdomain.ErrInvalidSession,
		authdomain.ErrSessionExpired,
		authdomain.ErrSessionRevoked,
		authdomain.ErrEmailNotVerified,
		authdomain.ErrInvalidVerificationToken,
		authoauth.ErrUnauthorized,
		authoauth.ErrProviderNotFound,
		authoauth.ErrUnverifiedEmail,
		invitationdomain.ErrInvitationNotFound,
		taskdomain.ErrTaskNotFound,
		membershipdomain.ErrMemberNotFound,
		organizationdomain.ErrOrganizationNotFound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, authoauth.ErrInvalidRequest),
		errors.Is(err, authdomain.ErrInvalidEmail),
		errors.Is(err, authdomain.ErrInvalidPassword),
		errors.Is(err, authdomain.ErrInvalidName),
		errors.Is(err, organizationdomain.ErrInvalidName),
		errors.Is(err, organizationdomain.ErrInvalidSlug),
		errors.Is(err, organizationdomain.ErrInvalidLogo),
		errors.Is(err, organizationdomain.ErrInvalidUser),
		errors.Is(err, membershipdomain.ErrInvalidRole),
		errors.Is(err, invitationdomain.ErrInvalidEmail),
		errors.Is(err, invitationdomain.ErrInvalidRole),
		errors.Is(err, taskdomain.ErrInvalidTitle),
		errors.Is(err, taskdomain.ErrInvalidPriority),
		errors.Is(err, taskdomain.ErrInvalidDueDate),
		errors.Is(err, taskdomain.ErrInvalidTask),
		errors.Is(err, auditdomain.ErrInvalidOrganization),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, authdomain.ErrUserNotFound),
		errors.Is(err, authdomain.ErrInvalidVerificationToken),
		errors.Is(err, authoauth.ErrProviderNotFound),
		errors.Is(err, organizationdomain.ErrOrganizationNotFound),
		errors.Is(err, membershipdomain.ErrMemberNotFound),
		errors.Is(err, invitationdomain.ErrInvitationNotFound),
		errors.Is(err, taskdomain.ErrTaskNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	return strings.TrimPrefix(code, "invalid_")
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_email":
		return "enter a valid email address"
	case "invalid_password":
		return "password does not meet the requirements"
	case "invalid_name":
		return "name is required and must be at most 100 characters"
	case "invalid_slug":
		return "slug may only contain lowercase letters, numbers and dashes"
	case "invalid_logo":
		return "choose one of the available logos"
	case "invalid_role":
		return "role must be owner, admin or member"
	case "invalid_title":
		return "title is required"
	case "invalid_priority":
		return "priority must be low, medium or high"
	case "invalid_due_date":
		return "due date must be a date"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog labels request errors for the access log.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if asValidationErrors(err) != nil {
		return "validation_error", "invalid_request"
	}
	if isValidationError(err) {
		return "validation_error", err.Error()
	}
	if status, ok := expectedErrorStatus(err); ok {
		return "expected_error", http.StatusText(status)
	}
	return "internal_error", "internal_error"
}
