package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gearrental/internal/models"
)

const activeStatusFilter = `b.status IN ('pending', 'confirmed')`

const bookingColumns = `b.id, b.user_id, b.customer_name, b.status, b.refund_status, b.address_id,
	b.total_amount, b.undertaking_signed, b.id_number, b.id_document_url,
	b.created_at, b.updated_at, b.version`

// FindActiveOverlaps returns the ranges of active line items for gearID that overlap r.
func (db *DB) FindActiveOverlaps(ctx context.Context, gearID string, r models.DateRange) ([]models.DateRange, error) {
	return findOverlaps(ctx, db.DB, gearID, r)
}

func findOverlaps(ctx context.Context, q queryer, gearID string, r models.DateRange) ([]models.DateRange, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT bi.start_date, bi.end_date
		FROM booking_items bi
		JOIN bookings b ON b.id = bi.booking_id
		WHERE bi.gear_id = ? AND `+activeStatusFilter+`
		  AND bi.start_date <= ? AND bi.end_date >= ?
		ORDER BY bi.start_date`,
		gearID, models.FormatDate(r.End), models.FormatDate(r.Start),
	)
	if err != nil {
		return nil, fmt.Errorf("query overlaps: %w", err)
	}
	return scanRanges(rows)
}

// ActiveRanges returns the date ranges of all active line items that reference gearID.
func (db *DB) ActiveRanges(ctx context.Context, gearID string) ([]models.DateRange, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT bi.start_date, bi.end_date
		FROM booking_items bi
		JOIN bookings b ON b.id = bi.booking_id
		WHERE bi.gear_id = ? AND `+activeStatusFilter+`
		ORDER BY bi.start_date, bi.end_date`,
		gearID,
	)
	if err != nil {
		return nil, fmt.Errorf("query active ranges: %w", err)
	}
	return scanRanges(rows)
}

func scanRanges(rows *sql.Rows) ([]models.DateRange, error) {
	defer rows.Close()

	ranges := make([]models.DateRange, 0)
	for rows.Next() {
		var start, end string
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		r, err := parseRange(start, end)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}

// CreateBooking inserts a booking and its line items. It does not look at other bookings.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertBooking(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CreateBookingExclusive re-checks every line item against active bookings and inserts
// inside one write transaction. A collision returns *NotAvailableError.
func (db *DB) CreateBookingExclusive(ctx context.Context, b *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, it := range b.Items {
		overlaps, err := findOverlaps(ctx, tx, it.GearID, it.Range())
		if err != nil {
			return err
		}
		if len(overlaps) > 0 {
			return &NotAvailableError{Item: it}
		}
	}

	if err := insertBooking(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertBooking(ctx context.Context, q queryer, b *models.Booking) error {
	if b.Version == 0 {
		b.Version = 1
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO bookings (
			id, user_id, customer_name, status, refund_status, address_id, total_amount,
			undertaking_signed, id_number, id_document_url, created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, nullString(b.UserID), b.CustomerName, string(b.Status), nullString(string(b.RefundStatus)),
		nullString(b.AddressID), b.TotalAmount, b.UndertakingSigned, nullString(b.IDNumber),
		nullString(b.IDDocumentURL), b.CreatedAt, b.UpdatedAt, b.Version,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	for i, it := range b.Items {
		_, err := q.ExecContext(ctx, `
			INSERT INTO booking_items (booking_id, position, gear_id, start_date, end_date, quantity, price_per_day)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ID, i, it.GearID, models.FormatDate(it.StartDate), models.FormatDate(it.EndDate),
			it.Quantity, it.PricePerDay,
		)
		if err != nil {
			return fmt.Errorf("insert booking item %d: %w", i, err)
		}
	}
	return nil
}

// GetBooking returns a booking with its line items.
func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, id)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := db.loadItems(ctx, `bi.booking_id = ?`, id)
	if err != nil {
		return nil, err
	}
	b.Items = items[b.ID]
	return b, nil
}

// ListBookingsByUser returns a user's bookings, newest first.
func (db *DB) ListBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings b
		WHERE b.user_id = ?
		ORDER BY b.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	bookings, err := scanBookings(rows)
	if err != nil {
		return nil, err
	}

	items, err := db.loadItems(ctx, `b.user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		bookings[i].Items = items[bookings[i].ID]
	}
	return bookings, nil
}

// ListAllBookings returns every booking joined with its delivery address, newest first.
func (db *DB) ListAllBookings(ctx context.Context) ([]models.AdminBooking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+bookingColumns+`,
		       a.id, a.user_id, a.street, a.city, a.state, a.zip, a.is_default
		FROM bookings b
		LEFT JOIN addresses a ON a.id = b.address_id
		ORDER BY b.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AdminBooking
	for rows.Next() {
		var br bookingRow
		var addrID, addrUser, street, city, state, zip sql.NullString
		var isDefault sql.NullBool
		dest := append(br.dest(), &addrID, &addrUser, &street, &city, &state, &zip, &isDefault)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		ab := models.AdminBooking{Booking: br.booking()}
		if addrID.Valid {
			ab.Address = &models.Address{
				ID: addrID.String, UserID: addrUser.String, Street: street.String,
				City: city.String, State: state.String, Zip: zip.String, IsDefault: isDefault.Bool,
			}
		}
		out = append(out, ab)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := db.loadItems(ctx, `1 = 1`)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

// UpdateBookingStatusWithVersion sets status and refund status if the booking is still
// at the given version.
func (db *DB) UpdateBookingStatusWithVersion(
	ctx context.Context,
	id string,
	version int64,
	status models.BookingStatus,
	refund models.RefundStatus,
) error {
	result, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, refund_status = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(status), nullString(string(refund)), time.Now().UTC(), id, version,
	)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	return db.checkVersionedUpdate(ctx, result, id)
}

// SignUndertaking records a completed identity verification on the booking.
func (db *DB) SignUndertaking(ctx context.Context, id string, version int64, idNumber, documentURL string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET undertaking_signed = 1, id_number = ?, id_document_url = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		nullString(idNumber), nullString(documentURL), time.Now().UTC(), id, version,
	)
	if err != nil {
		return fmt.Errorf("sign undertaking: %w", err)
	}
	return db.checkVersionedUpdate(ctx, result, id)
}

func (db *DB) checkVersionedUpdate(ctx context.Context, result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrBookingNotFound
	}
	return ErrConcurrentModification
}

// DeleteOldBookings removes cancelled and rejected bookings last touched before now-olderThan.
// Line items go with them through the cascade.
func (db *DB) DeleteOldBookings(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := db.ExecContext(ctx, `
		DELETE FROM bookings
		WHERE status IN ('cancelled', 'rejected') AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old bookings: %w", err)
	}
	return result.RowsAffected()
}

// loadItems fetches line items for the bookings matched by where, grouped by booking id.
func (db *DB) loadItems(ctx context.Context, where string, args ...any) (map[string][]models.LineItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT bi.booking_id, bi.gear_id, COALESCE(g.name, ''), bi.start_date, bi.end_date,
		       bi.quantity, bi.price_per_day
		FROM booking_items bi
		JOIN bookings b ON b.id = bi.booking_id
		LEFT JOIN gears g ON g.id = bi.gear_id
		WHERE `+where+`
		ORDER BY bi.booking_id, bi.position`, args...)
	if err != nil {
		return nil, fmt.Errorf("query booking items: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.LineItem)
	for rows.Next() {
		var bookingID, start, end string
		var it models.LineItem
		if err := rows.Scan(&bookingID, &it.GearID, &it.GearName, &start, &end, &it.Quantity, &it.PricePerDay); err != nil {
			return nil, err
		}
		r, err := parseRange(start, end)
		if err != nil {
			return nil, fmt.Errorf("booking %s: %w", bookingID, err)
		}
		it.StartDate, it.EndDate = r.Start, r.End
		out[bookingID] = append(out[bookingID], it)
	}
	return out, rows.Err()
}

// bookingRow holds the nullable columns of a bookings row during Scan.
type bookingRow struct {
	b                                          models.Booking
	userID, refund, addressID, idNumber, idURL sql.NullString
}

func (r *bookingRow) dest() []any {
	return []any{
		&r.b.ID, &r.userID, &r.b.CustomerName, &r.b.Status, &r.refund, &r.addressID,
		&r.b.TotalAmount, &r.b.UndertakingSigned, &r.idNumber, &r.idURL,
		&r.b.CreatedAt, &r.b.UpdatedAt, &r.b.Version,
	}
}

func (r *bookingRow) booking() models.Booking {
	b := r.b
	b.UserID = r.userID.String
	b.RefundStatus = models.RefundStatus(r.refund.String)
	b.AddressID = r.addressID.String
	b.IDNumber = r.idNumber.String
	b.IDDocumentURL = r.idURL.String
	return b
}

func scanBooking(s rowScanner) (*models.Booking, error) {
	var r bookingRow
	if err := s.Scan(r.dest()...); err != nil {
		return nil, err
	}
	b := r.booking()
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]models.Booking, error) {
	defer rows.Close()
	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func parseRange(start, end string) (models.DateRange, error) {
	s, err := models.ParseDate(start)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("parse start date %q: %w", start, err)
	}
	e, err := models.ParseDate(end)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("parse end date %q: %w", end, err)
	}
	return models.DateRange{Start: s, End: e}, nil
}
