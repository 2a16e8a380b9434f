package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"gearrental/internal/auth"
	"gearrental/internal/database"
	"gearrental/internal/models"
	"gearrental/internal/service"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// BookingAPI is the booking workflow behind the HTTP surface.
type BookingAPI interface {
	ValidateCart(ctx context.Context, items []models.ItemRequest) (*models.AvailabilityResult, error)
	CreateBooking(ctx context.Context, p auth.Principal, in models.BookingInput) (*models.Booking, error)
	CancelBooking(ctx context.Context, p auth.Principal, bookingID string) (*models.Booking, error)
	SetBookingStatus(ctx context.Context, bookingID string, status models.BookingStatus) (*models.Booking, error)
	MarkRefundProcessed(ctx context.Context, bookingID string) (*models.Booking, error)
	BookedDateRanges(ctx context.Context, gearID string) ([]models.DateRange, error)
	ListMine(ctx context.Context, p auth.Principal) ([]models.Booking, error)
	ListAll(ctx context.Context) ([]models.AdminBooking, error)
}

// UndertakingAPI signs rental undertakings after identity verification.
type UndertakingAPI interface {
	RequestOTP(ctx context.Context, p auth.Principal, bookingID, idNumber string) (string, error)
	Verify(ctx context.Context, p auth.Principal, bookingID, idNumber, clientID, otp string) (*models.Booking, error)
}

// CatalogStore serves the gear catalog and address book.
type CatalogStore interface {
	GetGears() []models.Gear
	GetGear(ctx context.Context, id string) (*models.Gear, error)
	CreateGear(ctx context.Context, g *models.Gear) error
	UpdateGear(ctx context.Context, g *models.Gear) error
	RetireGear(ctx context.Context, id string) error
	ListAddresses(ctx context.Context, userID string) ([]models.Address, error)
	CreateAddress(ctx context.Context, a *models.Address) error
}

// ReportWriter renders the admin spreadsheet export.
type ReportWriter interface {
	WriteReport(ctx context.Context, w io.Writer) error
}

// Options configures the listener and the per-client rate limit.
type Options struct {
	Addr              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	RequestsPerSecond float64
	Burst             int
}

type HTTPServer struct {
	bookings    BookingAPI
	undertaking UndertakingAPI
	catalog     CatalogStore
	reports     ReportWriter
	verifier    *auth.Verifier
	validator   *Validator
	limiter     *RateLimiter
	logger      *zerolog.Logger
	server      *http.Server
}

func NewHTTPServer(
	opts Options,
	bookings BookingAPI,
	undertaking UndertakingAPI,
	catalog CatalogStore,
	reports ReportWriter,
	verifier *auth.Verifier,
	logger *zerolog.Logger,
) *HTTPServer {
	s := &HTTPServer{
		bookings:    bookings,
		undertaking: undertaking,
		catalog:     catalog,
		reports:     reports,
		verifier:    verifier,
		validator:   NewValidator(),
		limiter:     NewRateLimiter(opts.RequestsPerSecond, opts.Burst, logger),
		logger:      logger,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.logRequests(mux),
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      opts.WriteTimeout,
	}
	return s
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	limit := s.limiter.Middleware

	mux.HandleFunc("POST /api/validate-cart", limit(s.handleValidateCart))
	mux.HandleFunc("POST /api/rentals", limit(s.requireUser(s.handleCreateRental)))
	mux.HandleFunc("GET /api/bookings", s.requireUser(s.handleMyBookings))
	mux.HandleFunc("PUT /api/bookings/{id}/cancel", s.requireUser(s.handleCancelBooking))
	mux.HandleFunc("POST /api/bookings/{id}/undertaking/otp", limit(s.requireUser(s.handleUndertakingOTP)))
	mux.HandleFunc("POST /api/bookings/{id}/undertaking/verify", limit(s.requireUser(s.handleUndertakingVerify)))

	mux.HandleFunc("GET /api/gears", s.handleGears)
	mux.HandleFunc("GET /api/gears/{id}", s.handleGear)
	mux.HandleFunc("GET /api/gears/{id}/booked-dates", s.handleBookedDates)
	mux.HandleFunc("POST /api/gears", s.requireAdmin(s.handleCreateGear))
	mux.HandleFunc("PUT /api/gears/{id}", s.requireAdmin(s.handleUpdateGear))
	mux.HandleFunc("DELETE /api/gears/{id}", s.requireAdmin(s.handleRetireGear))

	mux.HandleFunc("GET /api/admin/bookings", s.requireAdmin(s.handleAdminBookings))
	mux.HandleFunc("PUT /api/admin/bookings/{id}/status", s.requireAdmin(s.handleSetStatus))
	mux.HandleFunc("PUT /api/admin/bookings/{id}/refund", s.requireAdmin(s.handleRefund))
	mux.HandleFunc("GET /api/admin/export", s.requireAdmin(s.handleExport))

	mux.HandleFunc("GET /api/users/me/addresses", s.requireUser(s.handleListAddresses))
	mux.HandleFunc("POST /api/users/me/addresses", s.requireUser(s.handleCreateAddress))
}

// Handler exposes the routed handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting HTTP API server")
	s.limiter.StartCleanup()
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// decodeJSON reads a size-limited body into v. Unknown fields are rejected when strict is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, strict bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}

// writeServiceError maps service and storage errors to status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *service.ConflictError
	var transition *service.InvalidTransitionError

	switch {
	case errors.As(err, &conflict):
		body := map[string]any{
			"error":            conflict.Error(),
			"unavailableItems": conflict.Conflicts,
		}
		if c, ok := firstConflict(conflict); ok {
			body["gearId"] = c.GearID
		}
		writeJSON(w, http.StatusConflict, body)
	case errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "booking was modified concurrently, reload and retry")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &transition):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  transition.Error(),
			"status": transition.Current,
		})
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func firstConflict(e *service.ConflictError) (models.Conflict, bool) {
	if len(e.Conflicts) == 0 {
		return models.Conflict{}, false
	}
	return e.Conflicts[0], true
}
