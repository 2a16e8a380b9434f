package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gearrental/internal/config"
	"gearrental/internal/models"
)

const gearColumns = `id, name, category, price_per_day, thumbnail, images, is_active, created_at, updated_at`

// LoadGears refreshes the in-memory gear cache from the database.
func (db *DB) LoadGears(ctx context.Context) error {
	rows, err := db.QueryContext(ctx, `SELECT `+gearColumns+` FROM gears ORDER BY created_at, id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var gears []models.Gear
	for rows.Next() {
		g, err := scanGear(rows)
		if err != nil {
			return err
		}
		gears = append(gears, *g)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	index := make(map[string]int, len(gears))
	for i := range gears {
		index[gears[i].ID] = i
	}

	db.mu.Lock()
	db.gears = gears
	db.gearsByID = index
	db.cacheTime = time.Now()
	db.mu.Unlock()

	if db.logger != nil {
		db.logger.Debug().Int("count", len(gears)).Msg("Gear cache loaded")
	}
	return nil
}

// GetGears returns the active catalog from the cache.
func (db *DB) GetGears() []models.Gear {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]models.Gear, 0, len(db.gears))
	for _, g := range db.gears {
		if g.IsActive {
			out = append(out, g)
		}
	}
	return out
}

// GetGear returns a gear by id, active or retired.
func (db *DB) GetGear(ctx context.Context, id string) (*models.Gear, error) {
	db.mu.RLock()
	if i, ok := db.gearsByID[id]; ok {
		g := db.gears[i]
		db.mu.RUnlock()
		return &g, nil
	}
	db.mu.RUnlock()

	row := db.QueryRowContext(ctx, `SELECT `+gearColumns+` FROM gears WHERE id = ?`, id)
	g, err := scanGear(row)
	if err == sql.ErrNoRows {
		return nil, ErrGearNotFound
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// CreateGear inserts a new active gear.
func (db *DB) CreateGear(ctx context.Context, g *models.Gear) error {
	images, err := encodeImages(g.Images)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, `
		INSERT INTO gears (`+gearColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		g.ID, g.Name, g.Category, g.PricePerDay, g.Thumbnail, images, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert gear: %w", err)
	}
	g.IsActive = true
	g.CreatedAt, g.UpdatedAt = now, now
	return db.LoadGears(ctx)
}

// UpdateGear overwrites the editable fields of a gear.
func (db *DB) UpdateGear(ctx context.Context, g *models.Gear) error {
	images, err := encodeImages(g.Images)
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx, `
		UPDATE gears SET name = ?, category = ?, price_per_day = ?, thumbnail = ?, images = ?, updated_at = ?
		WHERE id = ?`,
		g.Name, g.Category, g.PricePerDay, g.Thumbnail, images, time.Now().UTC(), g.ID,
	)
	if err != nil {
		return fmt.Errorf("update gear: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrGearNotFound
	}
	return db.LoadGears(ctx)
}

// RetireGear hides a gear from the catalog. Booking history keeps referencing it.
func (db *DB) RetireGear(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `UPDATE gears SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("retire gear: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrGearNotFound
	}
	return db.LoadGears(ctx)
}

// SyncGearsFromCatalog upserts every gear listed in gears.yaml and reactivates it.
// Gears missing from the file are left untouched; admins may have added them.
func (db *DB) SyncGearsFromCatalog(ctx context.Context, cfg *config.CatalogConfig) error {
	if cfg == nil {
		return fmt.Errorf("catalog config is nil")
	}

	now := time.Now().UTC()
	for _, g := range cfg.Gears {
		images, err := encodeImages(g.Images)
		if err != nil {
			return err
		}
		_, err = db.ExecContext(ctx, `
			INSERT INTO gears (id, name, category, price_per_day, thumbnail, images, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				category = excluded.category,
				price_per_day = excluded.price_per_day,
				thumbnail = excluded.thumbnail,
				images = excluded.images,
				is_active = 1,
				updated_at = excluded.updated_at`,
			g.ID, g.Name, g.Category, g.PricePerDay, g.Thumbnail, images, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync gear %s: %w", g.ID, err)
		}
	}
	return db.LoadGears(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGear(s rowScanner) (*models.Gear, error) {
	var g models.Gear
	var images string
	if err := s.Scan(
		&g.ID, &g.Name, &g.Category, &g.PricePerDay, &g.Thumbnail, &images,
		&g.IsActive, &g.CreatedAt, &g.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if images != "" {
		if err := json.Unmarshal([]byte(images), &g.Images); err != nil {
			return nil, fmt.Errorf("decode images of gear %s: %w", g.ID, err)
		}
	}
	if g.Images == nil {
		g.Images = []string{}
	}
	return &g, nil
}

func encodeImages(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	data, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("encode images: %w", err)
	}
	return string(data), nil
}
