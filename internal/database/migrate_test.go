package database

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"testing"

	"gearrental/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLegacyDB(t *testing.T, path string) {
	t.Helper()
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()

	stmts := []string{
		`CREATE TABLE gears (id TEXT PRIMARY KEY, name TEXT, category TEXT, pricePerDay REAL, image TEXT)`,
		`CREATE TABLE addresses (id TEXT PRIMARY KEY, userId TEXT, street TEXT, city TEXT, state TEXT, zip TEXT, isDefault INTEGER)`,
		`CREATE TABLE bookings (
			id TEXT PRIMARY KEY, userId TEXT, customerName TEXT, gearIds TEXT,
			startDate TEXT, endDate TEXT, status TEXT, addressId TEXT, createdAt TEXT,
			refundStatus TEXT, undertakingSigned INTEGER, aadhaarNumber TEXT, aadhaarUrl TEXT
		)`,
		`INSERT INTO gears VALUES ('1', 'GoPro Hero 11 Black', 'Camera', 45, '/gopro.jpg')`,
		`INSERT INTO addresses VALUES ('a1', 'u1', '1 Main', 'Pune', 'MH', '411001', 1)`,
		`INSERT INTO bookings VALUES ('b1', 'u1', 'Asha', '["1","99","1"]', '2024-01-10', '2024-01-12', 'confirmed', 'a1', '2024-01-01T10:00:00Z', NULL, 1, 'XXXXXXXX9012', NULL)`,
		`INSERT INTO bookings VALUES ('b2', 'u2', 'Ravi', '1, 2', '2024-02-01T00:00:00.000Z', '2024-02-03T00:00:00.000Z', 'cancelled', 'gone', 'bad', 'pending', 0, NULL, NULL)`,
		`INSERT INTO bookings VALUES ('b3', 'u2', 'Bad', '1', 'not-a-date', '2024-02-03', 'pending', NULL, NULL, NULL, 0, NULL, NULL)`,
		`INSERT INTO bookings VALUES ('b4', 'u2', 'Empty', '', '2024-02-01', '2024-02-03', 'pending', NULL, NULL, NULL, 0, NULL, NULL)`,
	}
	for _, s := range stmts {
		_, err := raw.Exec(s)
		require.NoError(t, err, s)
	}
}

func TestNewDB_MigratesLegacyTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	seedLegacyDB(t, path)

	logger := zerolog.New(io.Discard)
	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	for _, name := range []string{"gears_legacy", "addresses_legacy", "bookings_legacy"} {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = ?`, name).Scan(&n))
		assert.Zero(t, n, name)
	}

	b1, err := db.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, b1.Status)
	assert.Equal(t, "a1", b1.AddressID)
	assert.True(t, b1.UndertakingSigned)
	assert.Equal(t, "XXXXXXXX9012", b1.IDNumber)
	require.Len(t, b1.Items, 2, "duplicate ids collapse")
	assert.Equal(t, "1", b1.Items[0].GearID)
	assert.Equal(t, "99", b1.Items[1].GearID)
	assert.Equal(t, day(2024, 1, 10), b1.Items[0].StartDate)
	assert.Equal(t, day(2024, 1, 12), b1.Items[0].EndDate)
	assert.InDelta(t, 135.0, b1.TotalAmount, 0.001)

	placeholder, err := db.GetGear(ctx, "99")
	require.NoError(t, err)
	assert.Equal(t, "Unknown gear 99", placeholder.Name)
	assert.False(t, placeholder.IsActive)

	b2, err := db.GetBooking(ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, b2.Status)
	assert.Equal(t, models.RefundPending, b2.RefundStatus)
	assert.Empty(t, b2.AddressID, "dangling address dropped")
	require.Len(t, b2.Items, 2)
	assert.Equal(t, day(2024, 2, 1), b2.Items[0].StartDate)

	for _, id := range []string{"b3", "b4"} {
		_, err := db.GetBooking(ctx, id)
		assert.ErrorIs(t, err, ErrBookingNotFound, id)
	}

	addrs, err := db.ListAddresses(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.True(t, addrs[0].IsDefault)

	overlaps, err := db.FindActiveOverlaps(ctx, "1", models.DateRange{Start: day(2024, 1, 12), End: day(2024, 1, 14)})
	require.NoError(t, err)
	assert.Len(t, overlaps, 1, "cancelled b2 does not block")

	gear, err := db.GetGear(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "/gopro.jpg", gear.Thumbnail)
}

func TestNewDB_MigrationIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	seedLegacyDB(t, path)

	logger := zerolog.New(io.Discard)
	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(path, &logger)
	require.NoError(t, err)
	defer db.Close()

	var items int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM booking_items`).Scan(&items))
	assert.Equal(t, 4, items)
}

func TestDecodeLegacyGearIDs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"json array", `["1","2"]`, []string{"1", "2"}},
		{"json string", `"1,2"`, []string{"1", "2"}},
		{"comma list", " 1 , 2 ,, 3 ", []string{"1", "2", "3"}},
		{"duplicates", "1,1,2", []string{"1", "2"}},
		{"single", "4", []string{"4"}},
		{"empty", "  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeLegacyGearIDs(tt.raw))
		})
	}
}
