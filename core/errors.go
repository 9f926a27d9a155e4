package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorStateMismatch         = "ONBOARDING_STATE_MISMATCH"
	ErrorMissingTenantIdentity = "ONBOARDING_MISSING_TENANT_IDENTITY"
	ErrorAuthorizationDenied   = "ONBOARDING_AUTHORIZATION_DENIED"
	ErrorRefreshFailed         = "CREDENTIAL_REFRESH_FAILED"
	ErrorCredentialNotFound    = "CREDENTIAL_NOT_FOUND"
	ErrorUnresolvable          = "INGEST_UNRESOLVABLE"
	ErrorTargetNotFound        = "INGEST_TARGET_NOT_FOUND"
	ErrorAlreadyApplied        = "INGEST_ALREADY_APPLIED"
	ErrorRemoteCallFailed      = "REMOTE_CALL_FAILED"
	ErrorBadInput              = "INTEGRATION_BAD_INPUT"
	ErrorInternal              = "INTEGRATION_INTERNAL_ERROR"
)

func NewStateMismatch(message string) *goerrors.Error {
	return newIntegrationError(message, goerrors.CategoryAuth, ErrorStateMismatch)
}

func NewMissingTenantIdentity(message string) *goerrors.Error {
	return newIntegrationError(message, goerrors.CategoryExternal, ErrorMissingTenantIdentity)
}

func NewAuthorizationDenied(message string) *goerrors.Error {
	return newIntegrationError(message, goerrors.CategoryAuth, ErrorAuthorizationDenied)
}

func NewRefreshFailed(message string) *goerrors.Error {
	return newIntegrationError(message, goerrors.CategoryExternal, ErrorRefreshFailed)
}

func NewCredentialNotFound(message string) *goerrors.Error {
	return newIntegrationError(message, goerrors.CategoryNotFound, ErrorCredentialNotFound)
}

func NewTargetNotFound(message string) *goerrors.Error {
	return newIntegrationError(message, goerrors.CategoryNotFound, ErrorTargetNotFound)
}

func NewRemoteCallFailed(message string, statusCode int) *goerrors.Error {
	category := goerrors.CategoryExternal
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		category = goerrors.CategoryAuth
	}
	err := goerrors.New(message, category).WithTextCode(ErrorRemoteCallFailed)
	if statusCode > 0 {
		err = err.WithMetadata(map[string]any{"status_code": statusCode})
	}
	return ensureIntegrationEnvelope(err)
}

func newIntegrationError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureIntegrationEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureIntegrationEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = integrationHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultIntegrationTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultIntegrationTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorTargetNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorAuthorizationDenied
	case goerrors.CategoryExternal:
		return ErrorRemoteCallFailed
	default:
		return ErrorInternal
	}
}

func integrationHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HasTextCode reports whether err (or any wrapped error) carries the given
// integration text code.
func HasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == textCode
}

func IsCredentialNotFound(err error) bool {
	return HasTextCode(err, ErrorCredentialNotFound)
}

func IsRefreshFailed(err error) bool {
	return HasTextCode(err, ErrorRefreshFailed)
}

func IsStateMismatch(err error) bool {
	return HasTextCode(err, ErrorStateMismatch)
}

// IsNotFound reports whether err represents a miss: either one of our
// not-found text codes or a not-found category from a wrapped error.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	if rich.TextCode == ErrorTargetNotFound || rich.TextCode == ErrorCredentialNotFound {
		return true
	}
	return rich.Category == goerrors.CategoryNotFound
}

// IsUnauthorized reports whether err represents an authorization rejection
// from a remote platform, the trigger for the refresh-once retry policy.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	if rich.Category == goerrors.CategoryAuth || rich.Category == goerrors.CategoryAuthz {
		return true
	}
	return rich.Code == http.StatusUnauthorized || rich.Code == http.StatusForbidden
}
