package audit

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

// Sheet writes tabular data into an xlsx workbook.
type Sheet interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []any) error
	Save(w io.Writer) error
	Close() error
}

// Workbook implements Sheet on top of excelize.
type Workbook struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
	headerStyle  int
}

func NewWorkbook() Sheet {
	return &Workbook{file: excelize.NewFile()}
}

func (w *Workbook) AddSheet(name string) error {
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}

	// A new file starts with Sheet1; reuse it for the first table.
	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *Workbook) WriteHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.WriteRow(row); err != nil {
		return err
	}

	if w.headerStyle == 0 {
		style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return nil
		}
		w.headerStyle = style
	}
	start, _ := excelize.CoordinatesToCellName(1, 1)
	end, _ := excelize.CoordinatesToCellName(max(len(columns), 1), 1)
	_ = w.file.SetCellStyle(w.currentSheet, start, end, w.headerStyle)
	return nil
}

func (w *Workbook) WriteRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = cellValue(v)
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", w.currentRow, err)
	}
	w.currentRow++
	return nil
}

func (w *Workbook) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

func (w *Workbook) Close() error {
	return w.file.Close()
}

// cellValue renders timestamps in a stable text form.
func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case []byte:
		return string(t)
	default:
		return v
	}
}
