package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gearrental/internal/models"
)

// Tables from the first release used camelCase columns and kept a booking's gear ids
// in one serialized text column. The marker column identifies that layout.
var legacyMarkers = []struct {
	table  string
	marker string
}{
	{"gears", "pricePerDay"},
	{"addresses", "userId"},
	{"bookings", "gearIds"},
}

// renameLegacyTables moves old-layout tables to <name>_legacy so the current schema can be created.
// Tables left over from an interrupted migration are picked up again.
func (db *DB) renameLegacyTables() (map[string]bool, error) {
	found := make(map[string]bool)
	for _, lt := range legacyMarkers {
		legacyName := lt.table + "_legacy"

		pending, err := db.hasColumn(legacyName, lt.marker)
		if err != nil {
			return nil, err
		}
		if pending {
			found[lt.table] = true
			continue
		}

		old, err := db.hasColumn(lt.table, lt.marker)
		if err != nil {
			return nil, err
		}
		if !old {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", lt.table, legacyName)); err != nil {
			return nil, fmt.Errorf("rename legacy %s: %w", lt.table, err)
		}
		found[lt.table] = true
	}
	return found, nil
}

// migrateLegacy copies old-layout rows into the current schema in one transaction and drops
// the legacy tables. Serialized gear id lists become booking_items rows.
func (db *DB) migrateLegacy(ctx context.Context, found map[string]bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if found["gears"] {
		if err := migrateLegacyGears(ctx, tx); err != nil {
			return err
		}
	}
	if found["addresses"] {
		if err := migrateLegacyAddresses(ctx, tx); err != nil {
			return err
		}
	}
	migrated, skipped := 0, 0
	if found["bookings"] {
		migrated, skipped, err = migrateLegacyBookings(ctx, tx)
		if err != nil {
			return err
		}
	}

	for _, name := range []string{"bookings", "addresses", "gears"} {
		if !found[name] {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s_legacy", name)); err != nil {
			return fmt.Errorf("drop legacy %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if db.logger != nil {
		db.logger.Info().
			Int("bookings", migrated).
			Int("skipped", skipped).
			Msg("Migrated legacy tables")
	}
	return nil
}

func migrateLegacyGears(ctx context.Context, tx *sql.Tx) error {
	rows, _, err := selectAll(ctx, tx, "gears_legacy")
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, r := range rows {
		price, _ := strconv.ParseFloat(asString(r["pricePerDay"]), 64)
		images := asString(r["images"])
		if images == "" {
			images = "[]"
		}
		thumb := asString(r["thumbnail"])
		if thumb == "" {
			thumb = asString(r["image"])
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO gears (id, name, category, price_per_day, thumbnail, images, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			asString(r["id"]), asString(r["name"]), asString(r["category"]), price, thumb, images, now, now,
		)
		if err != nil {
			return fmt.Errorf("copy gear %s: %w", asString(r["id"]), err)
		}
	}
	return nil
}

func migrateLegacyAddresses(ctx context.Context, tx *sql.Tx) error {
	rows, _, err := selectAll(ctx, tx, "addresses_legacy")
	if err != nil {
		return err
	}
	for _, r := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO addresses (id, user_id, street, city, state, zip, is_default)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			asString(r["id"]), asString(r["userId"]), asString(r["street"]), asString(r["city"]),
			asString(r["state"]), asString(r["zip"]), asString(r["isDefault"]) == "1",
		)
		if err != nil {
			return fmt.Errorf("copy address %s: %w", asString(r["id"]), err)
		}
	}
	return nil
}

func migrateLegacyBookings(ctx context.Context, tx *sql.Tx) (migrated, skipped int, err error) {
	rows, _, err := selectAll(ctx, tx, "bookings_legacy")
	if err != nil {
		return 0, 0, err
	}

	for _, r := range rows {
		id := asString(r["id"])
		start, errStart := models.ParseDate(asString(r["startDate"]))
		end, errEnd := models.ParseDate(asString(r["endDate"]))
		gearIDs := DecodeLegacyGearIDs(asString(r["gearIds"]))
		if errStart != nil || errEnd != nil || start.After(end) || len(gearIDs) == 0 {
			skipped++
			continue
		}

		status := models.BookingStatus(asString(r["status"]))
		if !status.Valid() {
			status = models.StatusConfirmed
		}
		createdAt, errTime := time.Parse(time.RFC3339, asString(r["createdAt"]))
		if errTime != nil {
			createdAt = time.Now().UTC()
		}

		var addressID any
		if a := asString(r["addressId"]); a != "" {
			var exists int
			if tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM addresses WHERE id = ?`, a).Scan(&exists) == nil && exists > 0 {
				addressID = a
			}
		}

		b := models.Booking{
			ID:           id,
			UserID:       asString(r["userId"]),
			CustomerName: asString(r["customerName"]),
			Status:       status,
			RefundStatus: models.RefundStatus(asString(r["refundStatus"])),
			CreatedAt:    createdAt,
			UpdatedAt:    createdAt,
		}
		for _, gid := range gearIDs {
			price, errGear := ensureLegacyGear(ctx, tx, gid)
			if errGear != nil {
				return 0, 0, errGear
			}
			b.Items = append(b.Items, models.LineItem{
				GearID:      gid,
				StartDate:   start,
				EndDate:     end,
				Quantity:    1,
				PricePerDay: price,
			})
		}
		b.TotalAmount = b.Total()

		if err := insertBooking(ctx, tx, &b); err != nil {
			return 0, 0, fmt.Errorf("copy booking %s: %w", id, err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE bookings SET address_id = ?, undertaking_signed = ?, id_number = ?, id_document_url = ?
			WHERE id = ?`,
			addressID, asString(r["undertakingSigned"]) == "1",
			nullString(asString(r["aadhaarNumber"])), nullString(asString(r["aadhaarUrl"])), id,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("copy booking %s extras: %w", id, err)
		}
		migrated++
	}
	return migrated, skipped, nil
}

// ensureLegacyGear returns the gear's price, inserting a retired placeholder for ids
// that no longer exist in the catalog.
func ensureLegacyGear(ctx context.Context, tx *sql.Tx, id string) (float64, error) {
	var price float64
	err := tx.QueryRowContext(ctx, `SELECT price_per_day FROM gears WHERE id = ?`, id).Scan(&price)
	if err == nil {
		return price, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO gears (id, name, category, price_per_day, is_active, created_at, updated_at)
		VALUES (?, ?, 'Legacy', 0, 0, ?, ?)`,
		id, "Unknown gear "+id, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert placeholder gear %s: %w", id, err)
	}
	return 0, nil
}

// DecodeLegacyGearIDs reads the old serialized gear id column: a JSON array,
// a JSON string, or a plain comma-separated list.
func DecodeLegacyGearIDs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		var single string
		if errSingle := json.Unmarshal([]byte(raw), &single); errSingle == nil {
			raw = single
		}
		list = strings.Split(raw, ",")
	}

	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, id := range list {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
