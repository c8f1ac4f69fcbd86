package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrValidation marks input rejected before reaching storage.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate marks a unique constraint violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrForbidden marks an operation the caller may not perform.
	ErrForbidden = errors.New("forbidden")
)

type userError struct {
	kind error
	msg  string
}

func (e userError) Error() string { return e.msg }
func (e userError) Unwrap() error { return e.kind }

// Invalid returns an ErrValidation carrying a message fit for display.
func Invalid(msg string) error {
	return userError{kind: ErrValidation, msg: msg}
}

// Duplicate returns an ErrDuplicate carrying a message fit for display.
func Duplicate(msg string) error {
	return userError{kind: ErrDuplicate, msg: msg}
}

// Forbidden returns an ErrForbidden carrying a message fit for display.
func Forbidden(msg string) error {
	return userError{kind: ErrForbidden, msg: msg}
}

// UserSafeMessage converts an error into text that can be flashed to the user
// without leaking internal detail.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var ue userError
	if errors.As(err, &ue) {
		return ue.msg
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	switch {
	case errors.Is(err, ErrValidation):
		return "Dados inválidos."
	case errors.Is(err, ErrDuplicate):
		return "Registro duplicado."
	case errors.Is(err, ErrForbidden):
		return "Operação não permitida."
	case errors.Is(err, ErrNotFound):
		return "Registro não encontrado."
	case errors.Is(err, ErrInvalidCredentials):
		return "E-mail ou senha inválidos."
	default:
		return "Ocorreu um erro inesperado. Tente novamente."
	}
}

// IsUserFacing reports whether err is an expected outcome of user input
// rather than an internal failure.
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden)
}
