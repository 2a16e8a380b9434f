package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func rng(s, e time.Time) DateRange {
	return DateRange{Start: s, End: e}
}

func TestDateRange_Overlaps(t *testing.T) {
	existing := rng(day(2024, 1, 10), day(2024, 1, 15))

	tests := []struct {
		name    string
		request DateRange
		overlap bool
	}{
		{"request before existing", rng(day(2024, 1, 1), day(2024, 1, 9)), false},
		{"request after existing", rng(day(2024, 1, 16), day(2024, 1, 20)), false},
		{"touching end day", rng(day(2024, 1, 15), day(2024, 1, 20)), true},
		{"touching start day", rng(day(2024, 1, 5), day(2024, 1, 10)), true},
		{"starts before, ends during", rng(day(2024, 1, 8), day(2024, 1, 12)), true},
		{"contained", rng(day(2024, 1, 11), day(2024, 1, 12)), true},
		{"contains existing", rng(day(2024, 1, 1), day(2024, 1, 31)), true},
		{"exact same range", existing, true},
		{"single day inside", rng(day(2024, 1, 13), day(2024, 1, 13)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.overlap, existing.Overlaps(tt.request))
			assert.Equal(t, tt.overlap, tt.request.Overlaps(existing), "overlap should be symmetric")
		})
	}
}

func TestDateRange_DaysAndContains(t *testing.T) {
	r := rng(day(2026, 1, 15), day(2026, 1, 20))
	assert.Equal(t, 6, r.Days())
	assert.Equal(t, 1, rng(day(2026, 1, 15), day(2026, 1, 15)).Days())
	assert.Equal(t, 0, rng(day(2026, 1, 16), day(2026, 1, 15)).Days())

	assert.True(t, r.ContainsDate(day(2026, 1, 15)))
	assert.True(t, r.ContainsDate(time.Date(2026, 1, 20, 18, 30, 0, 0, time.UTC)))
	assert.False(t, r.ContainsDate(day(2026, 1, 21)))
	assert.False(t, r.ContainsDate(day(2026, 1, 14)))
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 1), got)

	got, err = ParseDate("2024-03-01T23:10:00Z")
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 1), got)

	got, err = ParseDate("2024-03-01T23:00:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 2), got, "offset timestamps resolve to the UTC day")

	got, err = ParseDate("2024-03-02T01:00:00+03:00")
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 1), got)

	_, err = ParseDate("01-03-2024")
	assert.Error(t, err)
}

func TestTruncateDate_UsesUTCDay(t *testing.T) {
	eastern := time.FixedZone("EST", -5*60*60)
	got := TruncateDate(time.Date(2024, 3, 1, 23, 0, 0, 0, eastern))
	assert.Equal(t, day(2024, 3, 2), got)
	assert.Equal(t, time.UTC, got.Location())

	assert.Equal(t, day(2024, 3, 1), TruncateDate(time.Date(2024, 3, 1, 12, 0, 0, 0, eastern)))
}

func TestBookingStatus(t *testing.T) {
	assert.True(t, StatusPending.IsActive())
	assert.True(t, StatusConfirmed.IsActive())
	assert.False(t, StatusCancelled.IsActive())
	assert.False(t, StatusRejected.IsActive())

	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())

	assert.True(t, BookingStatus("confirmed").Valid())
	assert.False(t, BookingStatus("completed").Valid())
	assert.False(t, BookingStatus("").Valid())
}

func TestBooking_PeriodAndTotal(t *testing.T) {
	b := Booking{Items: []LineItem{
		{GearID: "1", StartDate: day(2024, 3, 3), EndDate: day(2024, 3, 5), Quantity: 1, PricePerDay: 45},
		{GearID: "3", StartDate: day(2024, 3, 1), EndDate: day(2024, 3, 2), Quantity: 2, PricePerDay: 25},
		{GearID: "1", StartDate: day(2024, 3, 10), EndDate: day(2024, 3, 10), PricePerDay: 45},
	}}

	p := b.Period()
	assert.Equal(t, day(2024, 3, 1), p.Start)
	assert.Equal(t, day(2024, 3, 10), p.End)

	// 45*3*1 + 25*2*2 + 45*1*1
	assert.InDelta(t, 280.0, b.Total(), 0.001)
	assert.Equal(t, []string{"1", "3"}, b.GearIDs())
}

func TestBooking_IsOwnedBy(t *testing.T) {
	b := Booking{UserID: "u1"}
	assert.True(t, b.IsOwnedBy("u1"))
	assert.False(t, b.IsOwnedBy("u2"))
	assert.False(t, (&Booking{}).IsOwnedBy(""))
}

func TestMaskIDNumber(t *testing.T) {
	assert.Equal(t, "XXXXXXXX9012", MaskIDNumber("123456789012"))
	assert.Equal(t, "12", MaskIDNumber("12"))
}
