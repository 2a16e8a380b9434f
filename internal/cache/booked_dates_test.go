package cache

import (
	"context"
	"testing"
	"time"

	"gearrental/internal/events"
	"gearrental/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*BookedDates, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBookedDates(client, ttl), mr
}

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBookedDates_SetGetInvalidate(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "1")
	assert.False(t, ok)

	ranges := []models.DateRange{
		{Start: day(3, 1), End: day(3, 5)},
		{Start: day(3, 10), End: day(3, 10)},
	}
	require.NoError(t, c.Set(ctx, "1", ranges))
	require.NoError(t, c.Set(ctx, "2", []models.DateRange{}))

	got, ok := c.Get(ctx, "1")
	require.True(t, ok)
	assert.Equal(t, ranges, got)

	got, ok = c.Get(ctx, "2")
	require.True(t, ok)
	assert.Empty(t, got)

	require.NoError(t, c.Invalidate(ctx, "1", "3"))
	_, ok = c.Get(ctx, "1")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "2")
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, "2")
	assert.False(t, ok, "entries expire")
}

func TestBookedDates_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	require.NoError(t, mr.Set(key("1"), "not json"))

	_, ok := c.Get(context.Background(), "1")
	assert.False(t, ok)
}

func TestBookedDates_Disabled(t *testing.T) {
	ctx := context.Background()
	for _, c := range []*BookedDates{nil, NewBookedDates(nil, time.Minute)} {
		require.NoError(t, c.Set(ctx, "1", nil))
		require.NoError(t, c.Invalidate(ctx, "1"))
		_, ok := c.Get(ctx, "1")
		assert.False(t, ok)
	}

	c, _ := newTestCache(t, 0)
	require.NoError(t, c.Set(ctx, "1", []models.DateRange{{Start: day(1, 1), End: day(1, 2)}}))
	_, ok := c.Get(ctx, "1")
	assert.False(t, ok)
}

func TestBookedDates_HandleBookingEvent(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "1", []models.DateRange{{Start: day(3, 1), End: day(3, 2)}}))
	require.NoError(t, c.Set(ctx, "2", nil))
	require.NoError(t, c.Set(ctx, "3", nil))

	bus := events.NewEventBus()
	bus.Subscribe(events.BookingStatusChanged, c.HandleBookingEvent)
	require.NoError(t, bus.PublishJSON(events.BookingStatusChanged, events.BookingEvent{
		BookingID: "b1",
		Status:    "cancelled",
		GearIDs:   []string{"1", "2"},
	}))

	assert.False(t, mr.Exists(key("1")))
	assert.False(t, mr.Exists(key("2")))
	assert.True(t, mr.Exists(key("3")))

	err := c.HandleBookingEvent(events.Event{Type: events.BookingCreated, Payload: []byte("{")})
	assert.Error(t, err)
}
