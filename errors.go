package access

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeUnknownPage              = "UNKNOWN_AUTH_PAGE"
	TextCodePageDisabled             = "AUTH_PAGE_DISABLED"
	TextCodeUnknownRole              = "UNKNOWN_ROLE"
	TextCodeDuplicateRole            = "DUPLICATE_ROLE"
	TextCodeInvalidRoleName          = "INVALID_ROLE_NAME"
	TextCodeInvalidDefaultRole       = "INVALID_DEFAULT_ROLE"
	TextCodeMultipleRoles            = "MULTIPLE_ROLES"
	TextCodeInvalidPermissionFormat  = "INVALID_PERMISSION_FORMAT"
	TextCodeNotConfigured            = "NOT_CONFIGURED"
	TextCodeRouteNotFound            = "ROUTE_NOT_FOUND"
	TextCodePersistence              = "PERSISTENCE_ERROR"
	TextCodePrincipalNotFound        = "PRINCIPAL_NOT_FOUND"
	TextCodeInvalidConfigValue       = "INVALID_CONFIG_VALUE"
	TextCodeInvalidManifest          = "INVALID_MANIFEST"
	TextCodeSuperuserRoleUnavailable = "SUPERUSER_ROLE_UNAVAILABLE"
	TextCodePermissionDenied         = "PERMISSION_DENIED"
)

// ErrUnknownPage is returned when a page name is not one of the fixed auth pages.
var ErrUnknownPage = goerrors.New("unknown auth page", goerrors.CategoryValidation).
	WithTextCode(TextCodeUnknownPage).
	WithCode(goerrors.CodeBadRequest)

// ErrPageDisabled is returned by the page guard when a page is switched off.
var ErrPageDisabled = goerrors.New("auth page is currently unavailable", goerrors.CategoryAuthz).
	WithTextCode(TextCodePageDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrUnknownRole is returned when a role name is not registered.
var ErrUnknownRole = goerrors.New("unknown role", goerrors.CategoryValidation).
	WithTextCode(TextCodeUnknownRole).
	WithCode(goerrors.CodeBadRequest)

// ErrDuplicateRole is returned when a role name is already registered.
var ErrDuplicateRole = goerrors.New("role already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateRole).
	WithCode(goerrors.CodeConflict)

// ErrInvalidRoleName is returned for empty or malformed role names.
var ErrInvalidRoleName = goerrors.New("invalid role name", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidRoleName).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidDefaultRole is returned when the default role is not part of the
// role set or when a second default role is declared.
var ErrInvalidDefaultRole = goerrors.New("invalid default role", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidDefaultRole).
	WithCode(goerrors.CodeBadRequest)

// ErrMultipleRoles is returned when a principal belongs to more than one role group.
var ErrMultipleRoles = goerrors.New("principal can only belong to one role group", goerrors.CategoryValidation).
	WithTextCode(TextCodeMultipleRoles).
	WithCode(goerrors.CodeConflict)

// ErrInvalidPermissionFormat is returned for identifiers not shaped "domain.action".
var ErrInvalidPermissionFormat = goerrors.New("invalid permission format", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidPermissionFormat).
	WithCode(goerrors.CodeBadRequest)

// ErrNotConfigured is returned when no home URL has been registered.
var ErrNotConfigured = goerrors.New("home url not configured", goerrors.CategoryInternal).
	WithTextCode(TextCodeNotConfigured).
	WithCode(goerrors.CodeInternal)

// ErrRouteNotFound is returned by URL resolvers for unknown route names.
var ErrRouteNotFound = goerrors.New("route not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRouteNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrPersistence wraps failures coming from the entity store.
var ErrPersistence = goerrors.New("persistence failure", goerrors.CategoryInternal).
	WithTextCode(TextCodePersistence).
	WithCode(goerrors.CodeInternal)

// ErrPrincipalNotFound is returned when a principal id has no record.
var ErrPrincipalNotFound = goerrors.New("principal not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodePrincipalNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidConfigValue is returned when a config value has an unsupported type.
var ErrInvalidConfigValue = goerrors.New("invalid config value", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidConfigValue).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidManifest is returned when a site manifest fails validation.
var ErrInvalidManifest = goerrors.New("invalid site manifest", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidManifest).
	WithCode(goerrors.CodeBadRequest)

// ErrSuperuserRoleUnavailable is returned when no role can be given to a superuser.
var ErrSuperuserRoleUnavailable = goerrors.New("no role available for superuser", goerrors.CategoryNotFound).
	WithTextCode(TextCodeSuperuserRoleUnavailable).
	WithCode(goerrors.CodeNotFound)

// ErrPermissionDenied is returned when a principal's role lacks a permission.
var ErrPermissionDenied = goerrors.New("permission denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodePermissionDenied).
	WithCode(goerrors.CodeForbidden)

// newError returns a new error shaped like sentinel and carrying metadata.
// Wrap clones *Error values without keeping them as the source, so the
// sentinel is linked by hand to keep errors.Is working.
func newError(sentinel *goerrors.Error, metadata map[string]any) error {
	err := goerrors.New(sentinel.Message, sentinel.Category).
		WithTextCode(sentinel.TextCode).
		WithCode(sentinel.Code).
		WithMetadata(metadata)
	err.Source = sentinel
	return err
}

// persistenceError wraps a storage failure.
func persistenceError(err error, op string, metadata map[string]any) error {
	if err == nil {
		return nil
	}
	md := map[string]any{"operation": op, "cause": err.Error()}
	for k, v := range metadata {
		md[k] = v
	}
	return errors.Join(newError(ErrPersistence, md), err)
}

// IsValidationError reports whether err is a declaration or input error that
// should be shown to the operator as a form error.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryValidation ||
			richErr.Category == goerrors.CategoryConflict
	}
	return false
}
