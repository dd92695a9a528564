package service

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Error categories. Handlers map these onto HTTP statuses with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrAuth       = errors.New("authentication failed")
)

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", ErrAuth)
	ErrUserInactive       = fmt.Errorf("%w: user account is inactive", ErrAuth)
	ErrWrongPassword      = fmt.Errorf("%w: current password is incorrect", ErrAuth)
	ErrSessionExpired     = fmt.Errorf("%w: session expired", ErrAuth)
	ErrStaffInactive      = fmt.Errorf("%w: staff account is inactive", ErrAuth)

	ErrUserNotFound   = fmt.Errorf("%w: user", ErrNotFound)
	ErrMemberNotFound = fmt.Errorf("%w: member", ErrNotFound)
	ErrBookNotFound   = fmt.Errorf("%w: book", ErrNotFound)
	ErrTxNotFound     = fmt.Errorf("%w: borrow transaction", ErrNotFound)

	ErrBookNotAvailable = fmt.Errorf("%w: book not available", ErrConflict)
	ErrMemberInactive   = fmt.Errorf("%w: member is inactive", ErrConflict)
	ErrBookOnLoan       = fmt.Errorf("%w: book is on loan", ErrConflict)
	ErrMemberHasLoans   = fmt.Errorf("%w: member has books on loan", ErrConflict)
	ErrUsernameTaken    = fmt.Errorf("%w: username already exists", ErrConflict)
	ErrMemberCodeTaken  = fmt.Errorf("%w: member code already exists", ErrConflict)
	ErrEmailTaken       = fmt.Errorf("%w: email already exists", ErrConflict)
	ErrSelfDemotion     = fmt.Errorf("%w: cannot remove your own admin role", ErrConflict)
	ErrSelfDeactivation = fmt.Errorf("%w: cannot deactivate your own account", ErrConflict)
)

// ValidationError carries every failed rule of one request.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Messages, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(msgs ...string) error {
	return &ValidationError{Messages: msgs}
}

// notFound converts gorm's missing-row error into the given sentinel and passes other errors through.
func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func joinIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
