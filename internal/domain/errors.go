package domain

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("slot already booked")
	ErrNoSlots        = errors.New("no free slots")
	ErrInactiveTenant = errors.New("tenant is inactive")
)

// Wire error codes returned in scheduling results.
const (
	CodeValidation     = "validation"
	CodeNotFound       = "not_found"
	CodeConflict       = "conflict"
	CodeNoSlots        = "no_slots"
	CodeInactiveTenant = "inactive_tenant"
	CodeInternal       = "internal"
)

// ErrorCode maps err onto a wire code. nil maps to "".
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrNoSlots):
		return CodeNoSlots
	case errors.Is(err, ErrInactiveTenant):
		return CodeInactiveTenant
	default:
		return CodeInternal
	}
}
