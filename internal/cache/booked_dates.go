package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gearrental/internal/events"
	"gearrental/internal/metrics"
	"gearrental/internal/models"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "booked_dates:"

// BookedDates caches the active booked ranges per gear in Redis.
// A nil client or non-positive TTL turns every call into a no-op miss.
type BookedDates struct {
	redis *redis.Client
	ttl   time.Duration
}

type cachedRange struct {
	Start string `json:"s"`
	End   string `json:"e"`
}

func NewBookedDates(client *redis.Client, ttl time.Duration) *BookedDates {
	return &BookedDates{redis: client, ttl: ttl}
}

func (c *BookedDates) enabled() bool {
	return c != nil && c.redis != nil && c.ttl > 0
}

func key(gearID string) string {
	return keyPrefix + gearID
}

// Get returns the cached ranges for gearID. Decode and connection errors count as a miss.
func (c *BookedDates) Get(ctx context.Context, gearID string) ([]models.DateRange, bool) {
	if !c.enabled() {
		return nil, false
	}
	val, err := c.redis.Get(ctx, key(gearID)).Result()
	if err != nil {
		metrics.IncCache("miss")
		return nil, false
	}

	var raw []cachedRange
	if err := json.Unmarshal([]byte(val), &raw); err != nil {
		metrics.IncCache("miss")
		return nil, false
	}
	out := make([]models.DateRange, 0, len(raw))
	for _, r := range raw {
		start, errStart := models.ParseDate(r.Start)
		end, errEnd := models.ParseDate(r.End)
		if errStart != nil || errEnd != nil {
			metrics.IncCache("miss")
			return nil, false
		}
		out = append(out, models.DateRange{Start: start, End: end})
	}
	metrics.IncCache("hit")
	return out, true
}

// Set stores ranges for gearID with the configured TTL.
func (c *BookedDates) Set(ctx context.Context, gearID string, ranges []models.DateRange) error {
	if !c.enabled() {
		return nil
	}
	raw := make([]cachedRange, 0, len(ranges))
	for _, r := range ranges {
		raw = append(raw, cachedRange{Start: models.FormatDate(r.Start), End: models.FormatDate(r.End)})
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, key(gearID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache booked dates for %s: %w", gearID, err)
	}
	return nil
}

// Invalidate drops the cached ranges of the given gears.
func (c *BookedDates) Invalidate(ctx context.Context, gearIDs ...string) error {
	if !c.enabled() || len(gearIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(gearIDs))
	for _, id := range gearIDs {
		keys = append(keys, key(id))
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate booked dates: %w", err)
	}
	return nil
}

// HandleBookingEvent drops the cached ranges of every gear on the booking.
// Subscribe it to the booking events that change which ranges are active.
func (c *BookedDates) HandleBookingEvent(e events.Event) error {
	be, err := events.DecodeBooking(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Invalidate(ctx, be.GearIDs...)
}
