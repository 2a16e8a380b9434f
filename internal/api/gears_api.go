package api

import (
	"errors"
	"net/http"
	"strings"

	"gearrental/internal/auth"
	"gearrental/internal/database"
	"gearrental/internal/metrics"
	"gearrental/internal/models"

	"github.com/google/uuid"
)

// gearRequest is the admin payload for creating or editing a catalog entry.
// Ids cannot contain commas because legacy checkouts use comma-separated id lists.
type gearRequest struct {
	ID          string   `json:"id" validate:"max=64,excludesall=0x2C"`
	Name        string   `json:"name" validate:"required,max=200"`
	Category    string   `json:"category" validate:"required,max=100"`
	PricePerDay float64  `json:"pricePerDay" validate:"gt=0"`
	Thumbnail   string   `json:"thumbnail" validate:"max=500"`
	Images      []string `json:"images" validate:"max=20,dive,max=500"`
}

func (req gearRequest) toGear(id string) *models.Gear {
	return &models.Gear{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		Category:    strings.TrimSpace(req.Category),
		PricePerDay: req.PricePerDay,
		Thumbnail:   req.Thumbnail,
		Images:      req.Images,
	}
}

// GET /api/gears
func (s *HTTPServer) handleGears(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("gears")
	writeJSON(w, http.StatusOK, s.catalog.GetGears())
}

// GET /api/gears/{id}
func (s *HTTPServer) handleGear(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("gear")

	gear, err := s.catalog.GetGear(r.Context(), r.PathValue("id"))
	if errors.Is(err, database.ErrGearNotFound) || (err == nil && !gear.IsActive) {
		writeError(w, http.StatusNotFound, "gear not found")
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gear)
}

// POST /api/gears
func (s *HTTPServer) handleCreateGear(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	metrics.IncHTTP("create_gear")

	var req gearRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	} else if _, err := s.catalog.GetGear(r.Context(), id); err == nil {
		writeError(w, http.StatusConflict, "gear "+id+" already exists")
		return
	}

	gear := req.toGear(id)
	if err := s.catalog.CreateGear(r.Context(), gear); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info().Str("gear_id", gear.ID).Str("admin_id", p.ID).Msg("Gear created")
	writeJSON(w, http.StatusCreated, gear)
}

// PUT /api/gears/{id}
func (s *HTTPServer) handleUpdateGear(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	metrics.IncHTTP("update_gear")

	var req gearRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	if err := s.catalog.UpdateGear(r.Context(), req.toGear(id)); err != nil {
		if errors.Is(err, database.ErrGearNotFound) {
			writeError(w, http.StatusNotFound, "gear not found")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	gear, err := s.catalog.GetGear(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info().Str("gear_id", id).Str("admin_id", p.ID).Msg("Gear updated")
	writeJSON(w, http.StatusOK, gear)
}

// DELETE /api/gears/{id} retires the gear; past bookings keep referencing it.
func (s *HTTPServer) handleRetireGear(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	metrics.IncHTTP("retire_gear")

	id := r.PathValue("id")
	if err := s.catalog.RetireGear(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrGearNotFound) {
			writeError(w, http.StatusNotFound, "gear not found")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info().Str("gear_id", id).Str("admin_id", p.ID).Msg("Gear retired")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Gear deleted successfully"})
}
