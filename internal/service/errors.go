package service

import (
	"errors"
	"fmt"

	"gearrental/internal/models"
)

var (
	ErrConflict          = errors.New("conflict")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidInput      = errors.New("invalid input")
)

// ConflictError lists the requested items that overlap active bookings.
type ConflictError struct {
	Conflicts []models.Conflict
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return "requested gear is not available"
	}
	c := e.Conflicts[0]
	name := c.Name
	if name == "" {
		name = c.GearID
	}
	return fmt.Sprintf("Gear %s is not available for the selected dates (%s to %s)", name, c.StartDate, c.EndDate)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// InvalidTransitionError reports a status change the booking lifecycle forbids.
type InvalidTransitionError struct {
	Current models.BookingStatus
	Target  models.BookingStatus
	Reason  string
}

func (e *InvalidTransitionError) Error() string {
	switch {
	case e.Reason != "":
		return e.Reason
	case e.Current == e.Target || e.Current.IsTerminal():
		return fmt.Sprintf("booking is already %s", e.Current)
	default:
		return fmt.Sprintf("cannot change booking from %s to %s", e.Current, e.Target)
	}
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
