package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemRequest_Parse(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		li, err := ItemRequest{GearID: " cam1 ", StartDate: "2024-03-01", EndDate: "2024-03-05"}.Parse()
		require.NoError(t, err)
		assert.Equal(t, "cam1", li.GearID)
		assert.Equal(t, 1, li.Quantity)
		assert.Equal(t, day(2024, 3, 1), li.StartDate)
		assert.Equal(t, day(2024, 3, 5), li.EndDate)
	})

	tests := []struct {
		name string
		req  ItemRequest
		want error
	}{
		{"missing id", ItemRequest{StartDate: "2024-03-01", EndDate: "2024-03-02"}, ErrMissingGearID},
		{"missing start", ItemRequest{GearID: "1", EndDate: "2024-03-02"}, ErrMissingDates},
		{"missing end", ItemRequest{GearID: "1", StartDate: "2024-03-02"}, ErrMissingDates},
		{"reversed", ItemRequest{GearID: "1", StartDate: "2024-03-05", EndDate: "2024-03-02"}, ErrInvalidRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.req.Parse()
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("malformed date", func(t *testing.T) {
		_, err := ItemRequest{GearID: "1", StartDate: "tomorrow", EndDate: "2024-03-02"}.Parse()
		assert.Error(t, err)
	})
}

func TestNormalizeLineItems_LegacyMatchesCart(t *testing.T) {
	legacy := NormalizeLineItems(BookingInput{
		GearIDs:   "A, B,,",
		StartDate: "2024-05-01",
		EndDate:   "2024-05-03",
	})
	cart := NormalizeLineItems(BookingInput{
		CartItems: []ItemRequest{
			{GearID: "A", StartDate: "2024-05-01", EndDate: "2024-05-03"},
			{GearID: "B", StartDate: "2024-05-01", EndDate: "2024-05-03"},
		},
	})

	require.Len(t, legacy, 2)
	assert.Equal(t, cart, legacy)
}

func TestNormalizeLineItems_CartPreferred(t *testing.T) {
	items := NormalizeLineItems(BookingInput{
		CartItems: []ItemRequest{{GearID: "1", StartDate: "2024-05-01", EndDate: "2024-05-02", Quantity: 3}},
		GearIDs:   "2,3",
	})
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0].GearID)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestAvailabilityResult_FirstConflict(t *testing.T) {
	var empty *AvailabilityResult
	_, ok := empty.FirstConflict()
	assert.False(t, ok)

	r := &AvailabilityResult{Conflicts: []Conflict{{GearID: "a"}, {GearID: "b"}}}
	c, ok := r.FirstConflict()
	assert.True(t, ok)
	assert.Equal(t, "a", c.GearID)
}
