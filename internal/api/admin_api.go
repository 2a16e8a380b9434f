package api

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"gearrental/internal/audit"
	"gearrental/internal/auth"
	"gearrental/internal/metrics"
	"gearrental/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// GET /api/admin/bookings
func (s *HTTPServer) handleAdminBookings(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	metrics.IncHTTP("admin_bookings")

	bookings, err := s.bookings.ListAll(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// PUT /api/admin/bookings/{id}/status
func (s *HTTPServer) handleSetStatus(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	metrics.IncHTTP("admin_set_status")

	var req statusRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.bookings.SetBookingStatus(r.Context(), r.PathValue("id"), models.BookingStatus(req.Status))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info().Str("booking_id", booking.ID).Str("admin_id", p.ID).Str("status", req.Status).Msg("Admin changed booking status")
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Booking status updated",
		"booking": booking,
	})
}

// PUT /api/admin/bookings/{id}/refund
func (s *HTTPServer) handleRefund(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	metrics.IncHTTP("admin_refund")

	booking, err := s.bookings.MarkRefundProcessed(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info().Str("booking_id", booking.ID).Str("admin_id", p.ID).Msg("Refund processed")
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Refund marked as processed",
		"booking": booking,
	})
}

// handleExport streams the bookings workbook. It is rendered into memory first so a
// failure can still be reported as JSON.
// GET /api/admin/export
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	metrics.IncHTTP("admin_export")

	if s.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}

	var buf bytes.Buffer
	if err := s.reports.WriteReport(r.Context(), &buf); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+audit.Filename(time.Now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
