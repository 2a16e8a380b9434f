package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gearrental/internal/config"
	"gearrental/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.SyncGearsFromCatalog(context.Background(), config.DefaultCatalog()))
	return db
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestNewDB_CreatesSchema(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"gears", "bookings", "booking_items", "addresses"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	var fk int
	require.NoError(t, db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestGears_SyncAndCache(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	gears := db.GetGears()
	require.Len(t, gears, 5)

	g, err := db.GetGear(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "GoPro Hero 11 Black", g.Name)
	assert.Equal(t, 45.0, g.PricePerDay)
	assert.Equal(t, []string{}, g.Images)

	cat := config.DefaultCatalog()
	cat.Gears[0].PricePerDay = 55
	require.NoError(t, db.SyncGearsFromCatalog(ctx, cat))
	g, err = db.GetGear(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 55.0, g.PricePerDay)

	_, err = db.GetGear(ctx, "missing")
	assert.ErrorIs(t, err, ErrGearNotFound)
}

func TestGears_CRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	g := &models.Gear{ID: "g-new", Name: "Sony RX0", Category: "Camera", PricePerDay: 20, Images: []string{"/a.jpg"}}
	require.NoError(t, db.CreateGear(ctx, g))
	assert.Len(t, db.GetGears(), 6)

	g.Name = "Sony RX0 II"
	require.NoError(t, db.UpdateGear(ctx, g))
	got, err := db.GetGear(ctx, "g-new")
	require.NoError(t, err)
	assert.Equal(t, "Sony RX0 II", got.Name)
	assert.Equal(t, []string{"/a.jpg"}, got.Images)

	require.NoError(t, db.RetireGear(ctx, "g-new"))
	assert.Len(t, db.GetGears(), 5)
	got, err = db.GetGear(ctx, "g-new")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, db.RetireGear(ctx, "nope"), ErrGearNotFound)
	assert.ErrorIs(t, db.UpdateGear(ctx, &models.Gear{ID: "nope"}), ErrGearNotFound)
}

func TestAddresses_DefaultHandling(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &models.Address{ID: "a1", UserID: "u1", Street: "1 Main", City: "Pune", State: "MH", Zip: "411001"}
	require.NoError(t, db.CreateAddress(ctx, first))
	assert.True(t, first.IsDefault, "first address becomes default")

	second := &models.Address{ID: "a2", UserID: "u1", Street: "2 Main", City: "Pune", State: "MH", Zip: "411002"}
	require.NoError(t, db.CreateAddress(ctx, second))
	assert.False(t, second.IsDefault)

	third := &models.Address{ID: "a3", UserID: "u1", Street: "3 Main", City: "Pune", State: "MH", Zip: "411003", IsDefault: true}
	require.NoError(t, db.CreateAddress(ctx, third))

	list, err := db.ListAddresses(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a3", list[0].ID)
	defaults := 0
	for _, a := range list {
		if a.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)

	_, err = db.GetAddress(ctx, "zzz")
	assert.ErrorIs(t, err, ErrAddressNotFound)
}

func TestGetTableData(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rows, cols, err := db.GetTableData(ctx, "gears")
	require.NoError(t, err)
	assert.Len(t, rows, 5)
	assert.Contains(t, cols, "price_per_day")

	_, _, err = db.GetTableData(ctx, "sqlite_master")
	assert.Error(t, err)
}

func TestBackupService(t *testing.T) {
	db := newTestDB(t)
	logger := zerolog.New(io.Discard)
	dir := t.TempDir()
	svc := NewBackupService(db, config.BackupConfig{Enabled: true, Path: dir, RetentionDays: 1}, &logger)

	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	old := time.Now().AddDate(0, 0, -3)
	require.NoError(t, os.Chtimes(path, old, old))
	deleted, err := svc.CleanupOldBackups()
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NoFileExists(t, path)
}
