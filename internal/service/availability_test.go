package service

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"gearrental/internal/config"
	"gearrental/internal/database"
	"gearrental/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "svc.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.SyncGearsFromCatalog(context.Background(), config.DefaultCatalog()))
	return db
}

func seedBooking(t *testing.T, db *database.DB, status models.BookingStatus, gearID string, r models.DateRange) {
	t.Helper()
	now := time.Now().UTC()
	err := db.CreateBooking(context.Background(), &models.Booking{
		ID:        uuid.NewString(),
		Status:    status,
		Items:     []models.LineItem{{GearID: gearID, StartDate: r.Start, EndDate: r.End, Quantity: 1}},
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
}

func newChecker(t *testing.T, db *database.DB, policy config.InvalidItemPolicy) *Checker {
	logger := zerolog.New(io.Discard)
	return NewChecker(db, db, config.BookingConfig{InvalidItems: policy, MaxRangeDays: 90}, &logger)
}

func req(gearID, start, end string) models.ItemRequest {
	return models.ItemRequest{GearID: gearID, StartDate: start, EndDate: end}
}

func TestChecker_Scenario(t *testing.T) {
	db := newStore(t)
	seedBooking(t, db, models.StatusPending, "1", rng(3, 1, 5))
	c := newChecker(t, db, config.InvalidItemsSkip)
	ctx := context.Background()

	res, err := c.Check(ctx, []models.ItemRequest{req("1", "2024-03-03", "2024-03-04")})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, models.Conflict{GearID: "1", Name: "GoPro Hero 11 Black", StartDate: "2024-03-03", EndDate: "2024-03-04"}, res.Conflicts[0])

	res, err = c.Check(ctx, []models.ItemRequest{req("1", "2024-03-06", "2024-03-08")})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Conflicts)
}

func TestChecker_InclusiveBoundaries(t *testing.T) {
	db := newStore(t)
	seedBooking(t, db, models.StatusConfirmed, "2", models.DateRange{Start: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)})
	c := newChecker(t, db, config.InvalidItemsSkip)
	ctx := context.Background()

	res, err := c.Check(ctx, []models.ItemRequest{req("2", "2024-01-15", "2024-01-20")})
	require.NoError(t, err)
	assert.False(t, res.Valid, "shared end day conflicts")

	res, err = c.Check(ctx, []models.ItemRequest{req("2", "2024-01-16", "2024-01-20")})
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestChecker_TerminalBookingsNeverBlock(t *testing.T) {
	db := newStore(t)
	seedBooking(t, db, models.StatusCancelled, "3", rng(4, 1, 10))
	seedBooking(t, db, models.StatusRejected, "3", rng(4, 1, 10))
	c := newChecker(t, db, config.InvalidItemsSkip)

	res, err := c.Check(context.Background(), []models.ItemRequest{req("3", "2024-04-01", "2024-04-10")})
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestChecker_NoFalseConflict(t *testing.T) {
	db := newStore(t)
	seedBooking(t, db, models.StatusConfirmed, "1", rng(5, 1, 3))
	c := newChecker(t, db, config.InvalidItemsSkip)

	res, err := c.Check(context.Background(), []models.ItemRequest{
		req("2", "2024-05-01", "2024-05-03"),
		req("1", "2024-05-04", "2024-05-06"),
		req("unknown", "2024-05-01", "2024-05-03"),
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.Len(t, res.Checks, 3)
	for _, ch := range res.Checks {
		assert.True(t, ch.Available)
	}
}

func TestChecker_ConflictOrderAndNames(t *testing.T) {
	db := newStore(t)
	seedBooking(t, db, models.StatusPending, "4", rng(6, 1, 2))
	seedBooking(t, db, models.StatusPending, "2", rng(6, 1, 2))
	c := newChecker(t, db, config.InvalidItemsSkip)

	ghost := req("1", "2024-06-01", "2024-06-01")
	res, err := c.Check(context.Background(), []models.ItemRequest{
		req("4", "2024-06-02", "2024-06-03"),
		ghost,
		{GearID: "2", Name: "client name", StartDate: "2024-06-01", EndDate: "2024-06-01"},
	})
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 2)
	assert.Equal(t, "DJI Mic", res.Conflicts[0].Name)
	assert.Equal(t, "Insta360 X3", res.Conflicts[1].Name, "catalog name wins")
	first, ok := res.FirstConflict()
	require.True(t, ok)
	assert.Equal(t, "4", first.GearID)
	assert.Equal(t, "booked", res.Checks[0].Reason)
	assert.True(t, res.Checks[1].Available)
}

func TestChecker_InvalidItemPolicy(t *testing.T) {
	db := newStore(t)
	seedBooking(t, db, models.StatusPending, "1", rng(3, 1, 5))
	ctx := context.Background()

	items := []models.ItemRequest{
		req("", "2024-03-01", "2024-03-02"),
		req("1", "", "2024-03-02"),
		req("1", "2024-03-09", "2024-03-08"),
		req("1", "03/01/2024", "2024-03-02"),
		req("1", "2024-01-01", "2024-12-31"),
		req("2", "2024-03-01", "2024-03-02"),
	}

	skip := newChecker(t, db, config.InvalidItemsSkip)
	res, err := skip.Check(ctx, items)
	require.NoError(t, err)
	assert.True(t, res.Valid, "skipped items do not affect validity")
	for i := 0; i < 5; i++ {
		assert.True(t, res.Checks[i].Skipped, i)
		assert.NotEmpty(t, res.Checks[i].Reason, i)
	}
	assert.True(t, res.Checks[5].Available)

	reject := newChecker(t, db, config.InvalidItemsReject)
	_, err = reject.Check(ctx, items)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "item 0")
}

func TestChecker_EmptyCart(t *testing.T) {
	db := newStore(t)
	c := newChecker(t, db, config.InvalidItemsReject)

	res, err := c.Check(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Checks)
}

func TestBookingService_SerializesOverlappingCheckouts(t *testing.T) {
	db := newStore(t)
	logger := zerolog.New(io.Discard)
	svc := NewBookingService(db, nil, nil, config.BookingConfig{}, &logger)
	ctx := context.Background()

	in := models.BookingInput{GearIDs: "5", StartDate: "2024-07-01", EndDate: "2024-07-03"}
	first, err := svc.CreateBooking(ctx, user, in)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, first.TotalAmount, 0.001)

	_, err = svc.CreateBooking(ctx, other, models.BookingInput{GearIDs: "5", StartDate: "2024-07-03", EndDate: "2024-07-04"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.CancelBooking(ctx, user, first.ID)
	require.NoError(t, err)

	_, err = svc.CreateBooking(ctx, other, models.BookingInput{GearIDs: "5", StartDate: "2024-07-03", EndDate: "2024-07-04"})
	assert.NoError(t, err, "cancelled booking frees the gear")

	ranges, err := svc.BookedDateRanges(ctx, "5")
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, rng(7, 3, 4), ranges[0])
}
