package credentials

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	TextCodeLockedOut            = "ACCOUNT_LOCKED_OUT"
	TextCodeEmailNotConfirmed    = "EMAIL_NOT_CONFIRMED"
	TextCodeInactive             = "ACCOUNT_INACTIVE"
	TextCodeInvalidToken         = "INVALID_OR_EXPIRED_TOKEN"
	TextCodeTokenMalformed       = "TOKEN_MALFORMED"
	TextCodeTokenFieldDelimiter  = "TOKEN_FIELD_CONTAINS_DELIMITER"
	TextCodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	TextCodeRoleNotFound         = "ROLE_NOT_FOUND"
	TextCodeRecoveryNotFound     = "RECOVERY_NOT_FOUND"
	TextCodeInvalidEmails        = "INVALID_EMAILS"
	TextCodeConcurrencyConflict  = "CONCURRENCY_CONFLICT"
	TextCodePasswordAlreadySet   = "PASSWORD_ALREADY_SET"
	TextCodeCurrentPassword      = "CURRENT_PASSWORD_INCORRECT"
	TextCodeSelfDeletion         = "SELF_DELETION"
	TextCodeAccountDeleted       = "ACCOUNT_ALREADY_DELETED"
	TextCodeAccountNotDeleted    = "ACCOUNT_NOT_DELETED"
	TextCodeEmailAlreadyVerified = "EMAIL_ALREADY_VERIFIED"
	TextCodeCreationFailed       = "ACCOUNT_CREATION_FAILED"
	TextCodePasswordPolicy       = "PASSWORD_POLICY"
)

// ErrMismatchedHashAndPassword is returned by hashers when the password
// does not match
var ErrMismatchedHashAndPassword = errors.New("mismatched hash and password")

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password can not be an empty string")

var (
	ErrInvalidCredentials = goerrors.New(
		"The username and password do not match, please try again or reset the password.",
		goerrors.CategoryAuth,
	).WithTextCode(TextCodeInvalidCredentials).WithCode(goerrors.CodeUnauthorized)

	ErrLockedOut = goerrors.New(
		"Your account is locked due to too many failed login attempts. A link has been sent to your configured email to unlock your account.",
		goerrors.CategoryAuth,
	).WithTextCode(TextCodeLockedOut).WithCode(goerrors.CodeForbidden)

	ErrEmailNotConfirmed = goerrors.New(
		"Your email is not verified yet. Please verify your email and create password.",
		goerrors.CategoryAuth,
	).WithTextCode(TextCodeEmailNotConfirmed).WithCode(goerrors.CodeForbidden)

	ErrInactive = goerrors.New(
		"Your account is inactive. Please contact to administrator.",
		goerrors.CategoryAuth,
	).WithTextCode(TextCodeInactive).WithCode(goerrors.CodeForbidden)

	// ErrInvalidOrExpiredToken covers every token failure so callers can not
	// tell a wrong secret from an expired or consumed one.
	ErrInvalidOrExpiredToken = goerrors.New("Invalid key or secret", goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidToken).WithCode(goerrors.CodeBadRequest)

	ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryBadInput).
		WithTextCode(TextCodeTokenMalformed).WithCode(goerrors.CodeBadRequest)

	ErrTokenFieldDelimiter = goerrors.New("token field contains the delimiter", goerrors.CategoryBadInput).
		WithTextCode(TextCodeTokenFieldDelimiter).WithCode(goerrors.CodeBadRequest)

	ErrAccountNotFound = goerrors.New("User not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeAccountNotFound).WithCode(goerrors.CodeNotFound)

	ErrRoleNotFound = goerrors.New("Role not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeRoleNotFound).WithCode(goerrors.CodeNotFound)

	// ErrRecoveryNotFound is the user facing miss on recovery requests. The
	// identifier is only logged.
	ErrRecoveryNotFound = goerrors.New("User not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeRecoveryNotFound).WithCode(goerrors.CodeNotFound)

	ErrInvalidEmails = goerrors.New("Invalid Emails", goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidEmails).WithCode(goerrors.CodeBadRequest)

	ErrConcurrencyConflict = goerrors.New("account was modified by another request", goerrors.CategoryConflict).
		WithTextCode(TextCodeConcurrencyConflict).WithCode(goerrors.CodeConflict)

	ErrPasswordAlreadySet = goerrors.New("account already has a password", goerrors.CategoryConflict).
		WithTextCode(TextCodePasswordAlreadySet).WithCode(goerrors.CodeConflict)

	ErrCurrentPasswordIncorrect = goerrors.New("Current Password is not correct.", goerrors.CategoryValidation).
		WithTextCode(TextCodeCurrentPassword).WithCode(goerrors.CodeBadRequest)

	ErrSelfDeletion = goerrors.New("You can not delete your own account", goerrors.CategoryValidation).
		WithTextCode(TextCodeSelfDeletion).WithCode(goerrors.CodeBadRequest)

	ErrAccountAlreadyDeleted = goerrors.New("User is already deleted", goerrors.CategoryConflict).
		WithTextCode(TextCodeAccountDeleted).WithCode(goerrors.CodeConflict)

	ErrAccountNotDeleted = goerrors.New("User is not deleted", goerrors.CategoryConflict).
		WithTextCode(TextCodeAccountNotDeleted).WithCode(goerrors.CodeConflict)

	ErrEmailAlreadyVerified = goerrors.New("Email is already verified", goerrors.CategoryConflict).
		WithTextCode(TextCodeEmailAlreadyVerified).WithCode(goerrors.CodeConflict)
)

// CreationFailedError reports why account provisioning was rolled back.
type CreationFailedError struct {
	Reasons []string
}

func (e *CreationFailedError) Error() string {
	if len(e.Reasons) == 0 {
		return "account creation failed"
	}
	return "account creation failed: " + strings.Join(e.Reasons, "; ")
}

// PasswordPolicyError lists the rules a password violated.
type PasswordPolicyError struct {
	Reasons []string
}

func (e *PasswordPolicyError) Error() string {
	return "password does not meet policy: " + strings.Join(e.Reasons, "; ")
}

// IsTextCode reports whether err is a rich error carrying code.
func IsTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}

// IsPasswordPolicyError reports whether err is a policy rejection
func IsPasswordPolicyError(err error) bool {
	var target *PasswordPolicyError
	return errors.As(err, &target)
}

// IsCreationFailed reports whether err is a provisioning failure
func IsCreationFailed(err error) bool {
	var target *CreationFailedError
	return errors.As(err, &target)
}

func wrapInternal(err error, msg string) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}

func cancelled(ctx interface{ Err() error }, op string) error {
	return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during "+op)
}
