package service

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"gearrental/internal/auth"
	"gearrental/internal/database"
	"gearrental/internal/events"
	"gearrental/internal/identity"
	"gearrental/internal/models"

	"github.com/rs/zerolog"
)

const idNumberLength = 12

// IdentityVerifier runs the two-step OTP identity check.
type IdentityVerifier interface {
	GenerateOTP(ctx context.Context, idNumber string) (string, error)
	SubmitOTP(ctx context.Context, clientID, otp string) (*identity.Verification, error)
}

// UndertakingService lets the owner of a confirmed booking sign the rental undertaking
// after verifying their identity document.
type UndertakingService struct {
	repo     BookingRepository
	verifier IdentityVerifier
	eventBus EventPublisher
	logger   *zerolog.Logger
}

func NewUndertakingService(repo BookingRepository, verifier IdentityVerifier, eventBus EventPublisher, logger *zerolog.Logger) *UndertakingService {
	return &UndertakingService{
		repo:     repo,
		verifier: verifier,
		eventBus: eventBus,
		logger:   logger,
	}
}

// RequestOTP starts verification and returns the provider client id.
func (s *UndertakingService) RequestOTP(ctx context.Context, p auth.Principal, bookingID, idNumber string) (string, error) {
	idNumber = strings.TrimSpace(idNumber)
	if err := validateIDNumber(idNumber); err != nil {
		return "", err
	}
	if _, err := s.eligibleBooking(ctx, p, bookingID); err != nil {
		return "", err
	}

	clientID, err := s.verifier.GenerateOTP(ctx, idNumber)
	if errors.Is(err, identity.ErrVerificationFailed) {
		return "", invalidInput("%v", err)
	}
	if err != nil {
		return "", err
	}
	return clientID, nil
}

// Verify submits the OTP and, on success, marks the booking's undertaking signed.
// Only the masked id number is stored.
func (s *UndertakingService) Verify(ctx context.Context, p auth.Principal, bookingID, idNumber, clientID, otp string) (*models.Booking, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(otp) == "" {
		return nil, invalidInput("client id and OTP are required")
	}
	idNumber = strings.TrimSpace(idNumber)
	if err := validateIDNumber(idNumber); err != nil {
		return nil, err
	}
	booking, err := s.eligibleBooking(ctx, p, bookingID)
	if err != nil {
		return nil, err
	}

	v, err := s.verifier.SubmitOTP(ctx, clientID, otp)
	if errors.Is(err, identity.ErrVerificationFailed) {
		return nil, invalidInput("%v", err)
	}
	if err != nil {
		return nil, err
	}

	masked := models.MaskIDNumber(idNumber)
	err = s.repo.SignUndertaking(ctx, booking.ID, booking.Version, masked, v.DocumentURL)
	if errors.Is(err, database.ErrBookingNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	booking.UndertakingSigned = true
	booking.IDNumber = masked
	booking.IDDocumentURL = v.DocumentURL
	booking.Version++

	if s.eventBus != nil {
		payload := events.BookingEvent{
			BookingID: booking.ID,
			UserID:    booking.UserID,
			Status:    string(booking.Status),
			GearIDs:   booking.GearIDs(),
		}
		if err := s.eventBus.PublishJSON(events.UndertakingSigned, payload); err != nil {
			s.logger.Error().Err(err).Msg("Failed to publish undertaking event")
		}
	}
	s.logger.Info().Str("booking_id", booking.ID).Msg("Undertaking signed")
	return booking, nil
}

func (s *UndertakingService) eligibleBooking(ctx context.Context, p auth.Principal, bookingID string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if errors.Is(err, database.ErrBookingNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !booking.IsOwnedBy(p.ID) {
		return nil, ErrNotFound
	}
	if booking.Status != models.StatusConfirmed {
		return nil, &InvalidTransitionError{
			Current: booking.Status,
			Target:  models.StatusConfirmed,
			Reason:  "undertaking can only be signed for confirmed bookings",
		}
	}
	if booking.UndertakingSigned {
		return nil, &InvalidTransitionError{
			Current: booking.Status,
			Target:  booking.Status,
			Reason:  "undertaking already signed",
		}
	}
	return booking, nil
}

func validateIDNumber(n string) error {
	if len(n) != idNumberLength {
		return invalidInput("a valid %d-digit id number is required", idNumberLength)
	}
	for _, r := range n {
		if !unicode.IsDigit(r) {
			return invalidInput("a valid %d-digit id number is required", idNumberLength)
		}
	}
	return nil
}
