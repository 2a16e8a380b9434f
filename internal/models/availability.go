package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingGearID = errors.New("gear id is required")
	ErrMissingDates  = errors.New("start and end dates are required")
	ErrInvalidRange  = errors.New("start date must be before or equal to end date")
)

// ItemRequest is a requested (gear, date range) pair as received from a client.
// Dates are kept as strings so malformed entries can be reported or skipped.
type ItemRequest struct {
	GearID    string `json:"gearId"`
	Name      string `json:"name,omitempty"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Quantity  int    `json:"quantity,omitempty"`
}

// Parse validates the request and converts it into a line item without catalog data.
func (r ItemRequest) Parse() (LineItem, error) {
	id := strings.TrimSpace(r.GearID)
	if id == "" {
		return LineItem{}, ErrMissingGearID
	}
	if strings.TrimSpace(r.StartDate) == "" || strings.TrimSpace(r.EndDate) == "" {
		return LineItem{}, ErrMissingDates
	}
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return LineItem{}, fmt.Errorf("invalid start date %q: %w", r.StartDate, err)
	}
	end, err := ParseDate(r.EndDate)
	if err != nil {
		return LineItem{}, fmt.Errorf("invalid end date %q: %w", r.EndDate, err)
	}
	if start.After(end) {
		return LineItem{}, ErrInvalidRange
	}
	qty := r.Quantity
	if qty < 1 {
		qty = 1
	}
	return LineItem{
		GearID:    id,
		GearName:  r.Name,
		StartDate: start,
		EndDate:   end,
		Quantity:  qty,
	}, nil
}

// ItemCheck is the outcome for one request of an availability check.
type ItemCheck struct {
	Request   ItemRequest `json:"request"`
	Available bool        `json:"available"`
	Skipped   bool        `json:"skipped,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// Conflict describes a requested item that overlaps an active booking.
type Conflict struct {
	GearID    string `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// AvailabilityResult is the answer for a batch of item requests.
type AvailabilityResult struct {
	Valid     bool        `json:"valid"`
	Checks    []ItemCheck `json:"checks"`
	Conflicts []Conflict  `json:"unavailableItems,omitempty"`
}

// FirstConflict returns the first conflicting item, if any.
func (r *AvailabilityResult) FirstConflict() (Conflict, bool) {
	if r == nil || len(r.Conflicts) == 0 {
		return Conflict{}, false
	}
	return r.Conflicts[0], true
}

// BookingInput is a checkout request. It carries either CartItems or the legacy
// single-range shape where GearIDs is a comma-separated id list.
type BookingInput struct {
	CartItems    []ItemRequest
	GearIDs      string
	StartDate    string
	EndDate      string
	CustomerName string
	AddressID    string
}

// NormalizeLineItems converts both input shapes into an ordered list of item requests.
// Legacy ids are trimmed and empty segments are dropped.
func NormalizeLineItems(in BookingInput) []ItemRequest {
	if len(in.CartItems) > 0 {
		out := make([]ItemRequest, 0, len(in.CartItems))
		for _, it := range in.CartItems {
			it.GearID = strings.TrimSpace(it.GearID)
			if it.Quantity < 1 {
				it.Quantity = 1
			}
			out = append(out, it)
		}
		return out
	}

	parts := strings.Split(in.GearIDs, ",")
	out := make([]ItemRequest, 0, len(parts))
	for _, p := range parts {
		id := strings.TrimSpace(p)
		if id == "" {
			continue
		}
		out = append(out, ItemRequest{
			GearID:    id,
			StartDate: in.StartDate,
			EndDate:   in.EndDate,
			Quantity:  1,
		})
	}
	return out
}
