package models

import (
	"strings"
	"time"
)

// DateLayout is the calendar date format used on the wire and in storage.
const DateLayout = "2006-01-02"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusRejected  BookingStatus = "rejected"
	StatusCancelled BookingStatus = "cancelled"
)

// ActiveStatuses are the statuses that hold gear.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed}

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether a booking in this status blocks its gear.
func (s BookingStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// IsTerminal reports whether the booking can no longer be cancelled.
func (s BookingStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRejected
}

// RefundStatus tracks money owed back after a cancellation.
type RefundStatus string

const (
	RefundNone      RefundStatus = ""
	RefundPending   RefundStatus = "pending"
	RefundProcessed RefundStatus = "processed"
)

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

// Valid reports whether both ends are set and Start is not after End.
func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.Start.After(r.End)
}

// Overlaps checks if two ranges share at least one day.
// Both ends are inclusive, so a range ending on day X conflicts with one starting on day X.
func (r DateRange) Overlaps(other DateRange) bool {
	return !r.Start.After(other.End) && !other.Start.After(r.End)
}

// Days returns the number of calendar days covered, counting both ends.
func (r DateRange) Days() int {
	if !r.Valid() {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// ContainsDate checks if the range covers a specific date.
func (r DateRange) ContainsDate(date time.Time) bool {
	d := TruncateDate(date)
	return !d.Before(r.Start) && !d.After(r.End)
}

// TruncateDate converts t to UTC and drops the clock part.
// 2024-03-01T23:00:00-05:00 is 2024-03-02 in UTC.
func TruncateDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return TruncateDate(t), nil
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// LineItem is one gear item rented for a date range inside a booking.
type LineItem struct {
	GearID      string    `json:"gearId"`
	GearName    string    `json:"gearName"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	Quantity    int       `json:"quantity"`
	PricePerDay float64   `json:"pricePerDay"`
}

// Range returns the dates of the line item.
func (li LineItem) Range() DateRange {
	return DateRange{Start: li.StartDate, End: li.EndDate}
}

// Subtotal is price per day times days times quantity.
func (li LineItem) Subtotal() float64 {
	qty := li.Quantity
	if qty < 1 {
		qty = 1
	}
	return li.PricePerDay * float64(li.Range().Days()) * float64(qty)
}

// Booking represents a rental order with one or more line items.
type Booking struct {
	ID                string        `json:"id"`
	UserID            string        `json:"userId,omitempty"`
	CustomerName      string        `json:"customerName,omitempty"`
	Items             []LineItem    `json:"items"`
	Status            BookingStatus `json:"status"`
	RefundStatus      RefundStatus  `json:"refundStatus,omitempty"`
	AddressID         string        `json:"addressId,omitempty"`
	TotalAmount       float64       `json:"totalAmount"`
	UndertakingSigned bool          `json:"undertakingSigned"`
	IDNumber          string        `json:"idNumber,omitempty"`
	IDDocumentURL     string        `json:"idDocumentUrl,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
	Version           int64         `json:"version"`
}

// Period returns the envelope of all line items: earliest start to latest end.
func (b *Booking) Period() DateRange {
	var r DateRange
	for i, it := range b.Items {
		if i == 0 || it.StartDate.Before(r.Start) {
			r.Start = it.StartDate
		}
		if i == 0 || it.EndDate.After(r.End) {
			r.End = it.EndDate
		}
	}
	return r
}

// GearIDs lists the distinct gear ids in line-item order.
func (b *Booking) GearIDs() []string {
	seen := make(map[string]struct{}, len(b.Items))
	ids := make([]string, 0, len(b.Items))
	for _, it := range b.Items {
		if _, ok := seen[it.GearID]; ok {
			continue
		}
		seen[it.GearID] = struct{}{}
		ids = append(ids, it.GearID)
	}
	return ids
}

// Total sums the subtotals of all line items.
func (b *Booking) Total() float64 {
	var total float64
	for _, it := range b.Items {
		total += it.Subtotal()
	}
	return total
}

// IsOwnedBy reports whether the booking belongs to the given user id.
func (b *Booking) IsOwnedBy(userID string) bool {
	return userID != "" && b.UserID == userID
}

// MaskIDNumber keeps the last four digits of an identity document number.
func MaskIDNumber(n string) string {
	if len(n) <= 4 {
		return n
	}
	return strings.Repeat("X", len(n)-4) + n[len(n)-4:]
}
