package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"gearrental/internal/auth"
	"gearrental/internal/metrics"
	"gearrental/internal/models"
	"gearrental/internal/service"
)

const cartUnavailableMessage = "Some items are not available for the selected dates."

// cartItem is one entry of a client-side cart. Clients send either id or gearId.
type cartItem struct {
	ID        string `json:"id"`
	GearID    string `json:"gearId"`
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Quantity  int    `json:"quantity" validate:"gte=0,lte=100"`
}

func (c cartItem) toRequest() models.ItemRequest {
	id := strings.TrimSpace(c.ID)
	if id == "" {
		id = strings.TrimSpace(c.GearID)
	}
	return models.ItemRequest{
		GearID:    id,
		Name:      c.Name,
		StartDate: c.StartDate,
		EndDate:   c.EndDate,
		Quantity:  c.Quantity,
	}
}

func toRequests(items []cartItem) []models.ItemRequest {
	out := make([]models.ItemRequest, 0, len(items))
	for _, it := range items {
		out = append(out, it.toRequest())
	}
	return out
}

type validateCartRequest struct {
	CartItems []cartItem `json:"cartItems" validate:"max=100,dive"`
}

type customerDetails struct {
	Name string `json:"name" validate:"max=200"`
}

// rentalRequest accepts a cart or the legacy comma-separated gearId with one date range.
type rentalRequest struct {
	CartItems       []cartItem       `json:"cartItems" validate:"max=100,dive"`
	GearID          string           `json:"gearId"`
	StartDate       string           `json:"startDate"`
	EndDate         string           `json:"endDate"`
	CustomerDetails *customerDetails `json:"customerDetails"`
	AddressID       string           `json:"addressId" validate:"max=64"`
}

func (req rentalRequest) toInput() models.BookingInput {
	in := models.BookingInput{
		CartItems: toRequests(req.CartItems),
		GearIDs:   req.GearID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		AddressID: strings.TrimSpace(req.AddressID),
	}
	if req.CustomerDetails != nil {
		in.CustomerName = strings.TrimSpace(req.CustomerDetails.Name)
	}
	return in
}

// handleValidateCart reports whether every cart item is free for its dates.
// POST /api/validate-cart
func (s *HTTPServer) handleValidateCart(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("validate_cart")

	var req validateCartRequest
	if err := decodeJSON(w, r, &req, false); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.CartItems) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"valid": true})
		return
	}

	result, err := s.bookings.ValidateCart(r.Context(), toRequests(req.CartItems))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !result.Valid {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"valid":            false,
			"message":          cartUnavailableMessage,
			"unavailableItems": result.Conflicts,
			"checks":           result.Checks,
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCreateRental books the requested gear for the caller.
// POST /api/rentals
func (s *HTTPServer) handleCreateRental(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	metrics.IncHTTP("create_rental")

	var req rentalRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.bookings.CreateBooking(r.Context(), p, req.toInput())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Rental booked successfully",
		"rental":  booking,
	})
}

// GET /api/bookings
func (s *HTTPServer) handleMyBookings(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	metrics.IncHTTP("my_bookings")

	bookings, err := s.bookings.ListMine(r.Context(), p)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// PUT /api/bookings/{id}/cancel
func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	metrics.IncHTTP("cancel_booking")

	booking, err := s.bookings.CancelBooking(r.Context(), p, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Booking cancelled successfully",
		"booking": booking,
	})
}

// booked-dates responses use the client's camelCase date strings.
type bookedRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// GET /api/gears/{id}/booked-dates
func (s *HTTPServer) handleBookedDates(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("booked_dates")

	ranges, err := s.bookings.BookedDateRanges(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]bookedRange, 0, len(ranges))
	for _, rg := range ranges {
		out = append(out, bookedRange{
			StartDate: models.FormatDate(rg.Start),
			EndDate:   models.FormatDate(rg.End),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

var _ BookingAPI = (*service.BookingService)(nil)
