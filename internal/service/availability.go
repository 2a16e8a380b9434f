package service

import (
	"context"
	"fmt"

	"gearrental/internal/config"
	"gearrental/internal/metrics"
	"gearrental/internal/models"

	"github.com/rs/zerolog"
)

// OverlapFinder returns the active booked ranges of a gear that overlap r.
type OverlapFinder interface {
	FindActiveOverlaps(ctx context.Context, gearID string, r models.DateRange) ([]models.DateRange, error)
}

// GearLookup resolves catalog entries.
type GearLookup interface {
	GetGear(ctx context.Context, id string) (*models.Gear, error)
}

// Checker decides which requested (gear, range) pairs collide with pending or confirmed bookings.
// It reads only; nothing is reserved.
type Checker struct {
	store        OverlapFinder
	gears        GearLookup
	policy       config.InvalidItemPolicy
	maxRangeDays int
	logger       *zerolog.Logger
}

func NewChecker(store OverlapFinder, gears GearLookup, cfg config.BookingConfig, logger *zerolog.Logger) *Checker {
	policy := cfg.InvalidItems
	if policy == "" {
		policy = config.InvalidItemsSkip
	}
	return &Checker{
		store:        store,
		gears:        gears,
		policy:       policy,
		maxRangeDays: cfg.MaxRangeDays,
		logger:       logger,
	}
}

// Check evaluates every request. Malformed requests are skipped or fail the whole check
// depending on the invalid item policy. An empty batch is valid.
func (c *Checker) Check(ctx context.Context, requests []models.ItemRequest) (*models.AvailabilityResult, error) {
	result := &models.AvailabilityResult{
		Valid:  true,
		Checks: make([]models.ItemCheck, 0, len(requests)),
	}

	for i, req := range requests {
		check := models.ItemCheck{Request: req}

		item, err := c.parse(req)
		if err != nil {
			if c.policy == config.InvalidItemsReject {
				return nil, invalidInput("item %d: %v", i, err)
			}
			c.logger.Debug().Int("index", i).Str("gear_id", req.GearID).Err(err).Msg("Skipping invalid cart item")
			check.Skipped = true
			check.Reason = err.Error()
			result.Checks = append(result.Checks, check)
			continue
		}

		conflict, err := c.checkItem(ctx, item)
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			check.Reason = "booked"
			result.Valid = false
			result.Conflicts = append(result.Conflicts, *conflict)
		} else {
			check.Available = true
		}
		result.Checks = append(result.Checks, check)
	}

	if result.Valid {
		metrics.IncAvailabilityCheck("valid")
	} else {
		metrics.IncAvailabilityCheck("conflict")
	}
	return result, nil
}

// conflicts checks already parsed line items and returns the colliding ones in order.
func (c *Checker) conflicts(ctx context.Context, items []models.LineItem) ([]models.Conflict, error) {
	var out []models.Conflict
	for _, it := range items {
		conflict, err := c.checkItem(ctx, it)
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			out = append(out, *conflict)
		}
	}
	return out, nil
}

func (c *Checker) checkItem(ctx context.Context, it models.LineItem) (*models.Conflict, error) {
	overlaps, err := c.store.FindActiveOverlaps(ctx, it.GearID, it.Range())
	if err != nil {
		return nil, fmt.Errorf("check availability of gear %s: %w", it.GearID, err)
	}
	if len(overlaps) == 0 {
		return nil, nil
	}

	name := it.GearName
	if g, err := c.gears.GetGear(ctx, it.GearID); err == nil {
		name = g.Name
	}
	return &models.Conflict{
		GearID:    it.GearID,
		Name:      name,
		StartDate: models.FormatDate(it.StartDate),
		EndDate:   models.FormatDate(it.EndDate),
	}, nil
}

// parse validates one request, including the maximum range length.
func (c *Checker) parse(req models.ItemRequest) (models.LineItem, error) {
	item, err := req.Parse()
	if err != nil {
		return models.LineItem{}, err
	}
	if c.maxRangeDays > 0 && item.Range().Days() > c.maxRangeDays {
		return models.LineItem{}, fmt.Errorf("date range exceeds maximum of %d days", c.maxRangeDays)
	}
	return item, nil
}
