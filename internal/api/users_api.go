package api

import (
	"net/http"
	"strings"

	"gearrental/internal/auth"
	"gearrental/internal/metrics"
	"gearrental/internal/models"

	"github.com/google/uuid"
)

type addressRequest struct {
	Street    string `json:"street" validate:"required,max=300"`
	City      string `json:"city" validate:"required,max=100"`
	State     string `json:"state" validate:"max=100"`
	Zip       string `json:"zip" validate:"required,max=20"`
	IsDefault bool   `json:"isDefault"`
}

type otpRequest struct {
	IDNumber string `json:"idNumber" validate:"required"`
}

type verifyRequest struct {
	ClientID string `json:"clientId" validate:"required"`
	OTP      string `json:"otp" validate:"required"`
	IDNumber string `json:"idNumber" validate:"required"`
}

// GET /api/users/me/addresses
func (s *HTTPServer) handleListAddresses(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	metrics.IncHTTP("list_addresses")

	addrs, err := s.catalog.ListAddresses(r.Context(), p.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if addrs == nil {
		addrs = []models.Address{}
	}
	writeJSON(w, http.StatusOK, addrs)
}

// POST /api/users/me/addresses
func (s *HTTPServer) handleCreateAddress(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	metrics.IncHTTP("create_address")

	var req addressRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	addr := &models.Address{
		ID:        uuid.NewString(),
		UserID:    p.ID,
		Street:    strings.TrimSpace(req.Street),
		City:      strings.TrimSpace(req.City),
		State:     strings.TrimSpace(req.State),
		Zip:       strings.TrimSpace(req.Zip),
		IsDefault: req.IsDefault,
	}
	if err := s.catalog.CreateAddress(r.Context(), addr); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Address added successfully",
		"address": addr,
	})
}

// POST /api/bookings/{id}/undertaking/otp
func (s *HTTPServer) handleUndertakingOTP(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	metrics.IncHTTP("undertaking_otp")

	var req otpRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	clientID, err := s.undertaking.RequestOTP(r.Context(), p, r.PathValue("id"), req.IDNumber)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "OTP sent",
		"clientId": clientID,
	})
}

// POST /api/bookings/{id}/undertaking/verify
func (s *HTTPServer) handleUndertakingVerify(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	metrics.IncHTTP("undertaking_verify")

	var req verifyRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.undertaking.Verify(r.Context(), p, r.PathValue("id"), req.IDNumber, req.ClientID, req.OTP)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Undertaking signed successfully",
		"booking": booking,
	})
}
