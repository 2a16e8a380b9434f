package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
)

// AuditTableNames are the tables included in spreadsheet exports.
var AuditTableNames = []string{
	"bookings",
	"booking_items",
	"gears",
	"addresses",
}

// GetTableNames returns list of table names to export.
func (db *DB) GetTableNames(_ context.Context) ([]string, error) {
	return AuditTableNames, nil
}

// GetTableData returns all rows from a table as maps, with the column order.
func (db *DB) GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error) {
	if !slices.Contains(AuditTableNames, tableName) {
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}
	return selectAll(ctx, db.DB, tableName)
}

// GetDB returns the underlying sql.DB.
func (db *DB) GetDB() *sql.DB {
	return db.DB
}

// selectAll reads a whole table. Callers must pass a trusted table name.
func selectAll(ctx context.Context, q queryer, tableName string) ([]map[string]any, []string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", tableName))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	if len(columns) == 0 {
		return nil, nil, fmt.Errorf("table %s has no columns", tableName)
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	return result, columns, rows.Err()
}
