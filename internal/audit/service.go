package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TableExporter provides access to database tables for export.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error)
}

// DataCleaner purges closed bookings past retention.
type DataCleaner interface {
	DeleteOldBookings(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Config struct {
	ExportDir string
	Retention time.Duration
}

// Service writes spreadsheet reports of the store and runs the monthly archive job:
// export to ExportDir, then purge cancelled and rejected bookings older than Retention.
type Service struct {
	config   Config
	exporter TableExporter
	newSheet func() Sheet
	cleaner  DataCleaner
	logger   *zerolog.Logger
	now      func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewService(cfg Config, exporter TableExporter, newSheet func() Sheet, cleaner DataCleaner, logger *zerolog.Logger) *Service {
	if cfg.ExportDir == "" {
		cfg.ExportDir = "exports"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 365 * 24 * time.Hour
	}
	if newSheet == nil {
		newSheet = NewWorkbook
	}
	return &Service{
		config:   cfg,
		exporter: exporter,
		newSheet: newSheet,
		cleaner:  cleaner,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Filename names the archive for the month containing t, e.g. gearrental_2024-03.xlsx.
func Filename(t time.Time) string {
	return fmt.Sprintf("gearrental_%s.xlsx", t.Format("2006-01"))
}

// Start runs the archive job at the start of every month until Stop.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
	s.logger.Info().Str("dir", s.config.ExportDir).Dur("retention", s.config.Retention).Msg("Audit service started")
}

func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("Audit service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	next := nextFirstOfMonth(s.now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()
	s.logger.Info().Time("time", next).Msg("Next audit scheduled")

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			if _, err := s.RunArchive(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Audit archive failed")
			}
			cancel()

			next = nextFirstOfMonth(s.now())
			timer.Reset(time.Until(next))
			s.logger.Info().Time("time", next).Msg("Next audit scheduled")
		}
	}
}

func nextFirstOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}

// WriteReport writes a workbook with one sheet per exported table.
func (s *Service) WriteReport(ctx context.Context, w io.Writer) error {
	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}

	sheet := s.newSheet()
	defer func() { _ = sheet.Close() }()

	for _, table := range tables {
		rows, columns, err := s.exporter.GetTableData(ctx, table)
		if err != nil {
			return fmt.Errorf("read table %s: %w", table, err)
		}
		if err := sheet.AddSheet(table); err != nil {
			return err
		}
		if err := sheet.WriteHeader(columns); err != nil {
			return fmt.Errorf("write header of %s: %w", table, err)
		}
		for _, row := range rows {
			values := make([]any, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			if err := sheet.WriteRow(values); err != nil {
				return fmt.Errorf("write %s row: %w", table, err)
			}
		}
		s.logger.Debug().Str("table", table).Int("rows", len(rows)).Msg("Exported table")
	}

	if err := sheet.Save(w); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// RunArchive exports the previous month's snapshot to ExportDir and then purges old data.
// The purge only runs after a successful export.
func (s *Service) RunArchive(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.ExportDir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	var buf bytes.Buffer
	if err := s.WriteReport(ctx, &buf); err != nil {
		return "", err
	}
	path := filepath.Join(s.config.ExportDir, Filename(s.now().AddDate(0, -1, 0)))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	s.logger.Info().Str("path", path).Msg("Audit archive written")

	if s.cleaner != nil {
		deleted, err := s.cleaner.DeleteOldBookings(ctx, s.config.Retention)
		if err != nil {
			return path, fmt.Errorf("delete old bookings: %w", err)
		}
		s.logger.Info().Int64("deleted", deleted).Msg("Cleaned up old bookings")
	}
	return path, nil
}
