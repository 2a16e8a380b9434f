package database

import (
	"context"
	"database/sql"
	"fmt"

	"gearrental/internal/models"
)

// ListAddresses returns a user's addresses with the default first.
func (db *DB) ListAddresses(ctx context.Context, userID string) ([]models.Address, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, street, city, state, zip, is_default
		FROM addresses WHERE user_id = ?
		ORDER BY is_default DESC, rowid`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Address, 0)
	for rows.Next() {
		var a models.Address
		if err := rows.Scan(&a.ID, &a.UserID, &a.Street, &a.City, &a.State, &a.Zip, &a.IsDefault); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAddress returns a single address.
func (db *DB) GetAddress(ctx context.Context, id string) (*models.Address, error) {
	var a models.Address
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, street, city, state, zip, is_default
		FROM addresses WHERE id = ?`, id,
	).Scan(&a.ID, &a.UserID, &a.Street, &a.City, &a.State, &a.Zip, &a.IsDefault)
	if err == sql.ErrNoRows {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAddress adds an address. The user's first address, or one flagged default,
// becomes the only default.
func (db *DB) CreateAddress(ctx context.Context, a *models.Address) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM addresses WHERE user_id = ?`, a.UserID).Scan(&count); err != nil {
		return fmt.Errorf("count addresses: %w", err)
	}
	if count == 0 {
		a.IsDefault = true
	}
	if a.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE addresses SET is_default = 0 WHERE user_id = ?`, a.UserID); err != nil {
			return fmt.Errorf("reset default address: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO addresses (id, user_id, street, city, state, zip, is_default)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Street, a.City, a.State, a.Zip, a.IsDefault,
	)
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	return tx.Commit()
}
