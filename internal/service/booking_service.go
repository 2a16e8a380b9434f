package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gearrental/internal/auth"
	"gearrental/internal/config"
	"gearrental/internal/database"
	"gearrental/internal/events"
	"gearrental/internal/metrics"
	"gearrental/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingRepository is the persistence the booking service needs.
type BookingRepository interface {
	OverlapFinder
	GearLookup
	GetAddress(ctx context.Context, id string) (*models.Address, error)
	CreateBooking(ctx context.Context, b *models.Booking) error
	CreateBookingExclusive(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id string, version int64, status models.BookingStatus, refund models.RefundStatus) error
	SignUndertaking(ctx context.Context, id string, version int64, idNumber, documentURL string) error
	ActiveRanges(ctx context.Context, gearID string) ([]models.DateRange, error)
	ListBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error)
	ListAllBookings(ctx context.Context) ([]models.AdminBooking, error)
}

// EventPublisher is satisfied by *events.EventBus.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// RangeCache caches booked ranges per gear. Implementations treat failures as misses.
type RangeCache interface {
	Get(ctx context.Context, gearID string) ([]models.DateRange, bool)
	Set(ctx context.Context, gearID string, ranges []models.DateRange) error
	Invalidate(ctx context.Context, gearIDs ...string) error
}

type BookingService struct {
	repo      BookingRepository
	checker   *Checker
	eventBus  EventPublisher
	cache     RangeCache
	exclusive bool
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewBookingService(
	repo BookingRepository,
	eventBus EventPublisher,
	cache RangeCache,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	s := &BookingService{
		repo:      repo,
		checker:   NewChecker(repo, repo, cfg, logger),
		eventBus:  eventBus,
		cache:     cache,
		exclusive: cfg.Exclusive(),
		logger:    logger,
		now:       time.Now,
	}
	if !s.exclusive {
		logger.Warn().Msg("Exclusive booking writes disabled; concurrent checkouts may double-book gear")
	}
	return s
}

// overlappingItems finds two line items that hold the same gear on a shared day.
// Every gear id is a single physical unit, so such a cart can never be fulfilled.
func overlappingItems(items []models.LineItem) (int, int, bool) {
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if items[i].GearID == items[j].GearID && items[i].Range().Overlaps(items[j].Range()) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// ValidateCart reports which cart items are available. Read-only.
func (s *BookingService) ValidateCart(ctx context.Context, items []models.ItemRequest) (*models.AvailabilityResult, error) {
	return s.checker.Check(ctx, items)
}

// CreateBooking validates the checkout input, re-checks availability and stores a pending booking.
func (s *BookingService) CreateBooking(ctx context.Context, p auth.Principal, in models.BookingInput) (*models.Booking, error) {
	requests := models.NormalizeLineItems(in)
	if len(requests) == 0 {
		return nil, invalidInput("at least one gear item is required")
	}

	items := make([]models.LineItem, 0, len(requests))
	for i, req := range requests {
		item, err := s.checker.parse(req)
		if err != nil {
			if s.checker.policy == config.InvalidItemsReject {
				return nil, invalidInput("item %d: %v", i, err)
			}
			s.logger.Warn().Int("index", i).Str("gear_id", req.GearID).Err(err).Msg("Dropping invalid line item")
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, invalidInput("no valid gear items in request")
	}
	if i, j, ok := overlappingItems(items); ok {
		return nil, invalidInput("items %d and %d book gear %s on overlapping dates", i, j, items[i].GearID)
	}

	for i := range items {
		item := &items[i]
		gear, err := s.repo.GetGear(ctx, item.GearID)
		if errors.Is(err, database.ErrGearNotFound) || (err == nil && !gear.IsActive) {
			return nil, invalidInput("gear %s does not exist", item.GearID)
		}
		if err != nil {
			return nil, fmt.Errorf("load gear %s: %w", item.GearID, err)
		}
		item.GearName = gear.Name
		item.PricePerDay = gear.PricePerDay
	}

	if in.AddressID != "" {
		addr, err := s.repo.GetAddress(ctx, in.AddressID)
		if errors.Is(err, database.ErrAddressNotFound) || (err == nil && addr.UserID != p.ID) {
			return nil, invalidInput("address %s does not exist", in.AddressID)
		}
		if err != nil {
			return nil, fmt.Errorf("load address: %w", err)
		}
	}

	conflicts, err := s.checker.conflicts(ctx, items)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		metrics.IncBookingConflict("check")
		return nil, &ConflictError{Conflicts: conflicts}
	}

	name := in.CustomerName
	if name == "" {
		name = p.Name
	}
	now := s.now().UTC()
	booking := &models.Booking{
		ID:           uuid.NewString(),
		UserID:       p.ID,
		CustomerName: name,
		Items:        items,
		Status:       models.StatusPending,
		AddressID:    in.AddressID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	booking.TotalAmount = booking.Total()

	if s.exclusive {
		err = s.repo.CreateBookingExclusive(ctx, booking)
	} else {
		err = s.repo.CreateBooking(ctx, booking)
	}
	var notAvailable *database.NotAvailableError
	if errors.As(err, &notAvailable) {
		metrics.IncBookingConflict("insert")
		it := notAvailable.Item
		return nil, &ConflictError{Conflicts: []models.Conflict{{
			GearID:    it.GearID,
			Name:      it.GearName,
			StartDate: models.FormatDate(it.StartDate),
			EndDate:   models.FormatDate(it.EndDate),
		}}}
	}
	if err != nil {
		return nil, fmt.Errorf("store booking: %w", err)
	}

	metrics.IncBookingCreated()
	s.publish(events.BookingCreated, booking)
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("user_id", booking.UserID).
		Int("items", len(booking.Items)).
		Float64("total", booking.TotalAmount).
		Msg("Booking created")
	return booking, nil
}

// CancelBooking moves an active booking to cancelled and marks its refund pending.
// Bookings of other users are reported as not found unless the caller is an admin.
func (s *BookingService) CancelBooking(ctx context.Context, p auth.Principal, bookingID string) (*models.Booking, error) {
	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && !booking.IsOwnedBy(p.ID) {
		return nil, ErrNotFound
	}
	if booking.Status.IsTerminal() {
		return nil, &InvalidTransitionError{Current: booking.Status, Target: models.StatusCancelled}
	}

	if err := s.updateStatus(ctx, booking, models.StatusCancelled, models.RefundPending); err != nil {
		return nil, err
	}
	return booking, nil
}

// SetBookingStatus is the admin override. Cancelling marks the refund pending; any other
// status clears it. Re-activating a closed booking does not re-check availability.
func (s *BookingService) SetBookingStatus(ctx context.Context, bookingID string, status models.BookingStatus) (*models.Booking, error) {
	if !status.Valid() {
		return nil, invalidInput("invalid status %q", status)
	}
	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	refund := models.RefundNone
	if status == models.StatusCancelled {
		refund = models.RefundPending
	}
	if booking.Status.IsTerminal() && status.IsActive() {
		s.logger.Warn().
			Str("booking_id", booking.ID).
			Str("from", string(booking.Status)).
			Str("to", string(status)).
			Msg("Re-activating booking without availability check")
	}

	if err := s.updateStatus(ctx, booking, status, refund); err != nil {
		return nil, err
	}
	return booking, nil
}

// MarkRefundProcessed records that the refund of a cancelled booking was paid out.
func (s *BookingService) MarkRefundProcessed(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.StatusCancelled {
		return nil, &InvalidTransitionError{
			Current: booking.Status,
			Target:  models.StatusCancelled,
			Reason:  "refund can only be processed for cancelled bookings",
		}
	}

	if err := s.updateStatus(ctx, booking, models.StatusCancelled, models.RefundProcessed); err != nil {
		return nil, err
	}
	return booking, nil
}

// BookedDateRanges returns the active booked ranges of a gear, ordered by start.
func (s *BookingService) BookedDateRanges(ctx context.Context, gearID string) ([]models.DateRange, error) {
	if s.cache != nil {
		if ranges, ok := s.cache.Get(ctx, gearID); ok {
			return ranges, nil
		}
	}

	ranges, err := s.repo.ActiveRanges(ctx, gearID)
	if err != nil {
		return nil, fmt.Errorf("load booked dates: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, gearID, ranges); err != nil {
			s.logger.Warn().Err(err).Str("gear_id", gearID).Msg("Failed to cache booked dates")
		}
	}
	return ranges, nil
}

// ListMine returns the caller's bookings, newest first.
func (s *BookingService) ListMine(ctx context.Context, p auth.Principal) ([]models.Booking, error) {
	bookings, err := s.repo.ListBookingsByUser(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	for i := range bookings {
		bookings[i].IDNumber = models.MaskIDNumber(bookings[i].IDNumber)
	}
	return bookings, nil
}

// ListAll returns every booking with its delivery address, newest first.
func (s *BookingService) ListAll(ctx context.Context) ([]models.AdminBooking, error) {
	bookings, err := s.repo.ListAllBookings(ctx)
	if err != nil {
		return nil, err
	}
	if bookings == nil {
		bookings = []models.AdminBooking{}
	}
	for i := range bookings {
		bookings[i].IDNumber = models.MaskIDNumber(bookings[i].IDNumber)
	}
	return bookings, nil
}

func (s *BookingService) getBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if errors.Is(err, database.ErrBookingNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load booking %s: %w", id, err)
	}
	return booking, nil
}

// updateStatus writes the change guarded by the loaded version and updates booking in place.
func (s *BookingService) updateStatus(
	ctx context.Context,
	booking *models.Booking,
	status models.BookingStatus,
	refund models.RefundStatus,
) error {
	err := s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, status, refund)
	if errors.Is(err, database.ErrBookingNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	from := booking.Status
	booking.Status = status
	booking.RefundStatus = refund
	booking.Version++
	booking.UpdatedAt = s.now().UTC()

	metrics.IncStatusChange(string(status))
	s.publish(events.BookingStatusChanged, booking)
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("from", string(from)).
		Str("to", string(status)).
		Str("refund", string(refund)).
		Msg("Booking status changed")
	return nil
}

func (s *BookingService) publish(eventType string, b *models.Booking) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEvent{
		BookingID: b.ID,
		UserID:    b.UserID,
		Status:    string(b.Status),
		GearIDs:   b.GearIDs(),
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}
