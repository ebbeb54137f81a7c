package account

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrEmailTaken is returned when the email belongs to another account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUsernameTaken is returned when the username belongs to another account.
	ErrUsernameTaken = errors.New("username already in use")
	// ErrRoleNotFound is returned when a required role has not been seeded.
	ErrRoleNotFound = errors.New("role not found")
	// ErrInvalidCredentials is returned by Authenticate and ChangePassword.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("account not found")
)

// ValidationError lists the input fields that failed validation.
type ValidationError struct {
	Fields []string
	err    error
}

func (e *ValidationError) Error() string {
	return "invalid " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

func newValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return &ValidationError{Fields: fields, err: err}
}
