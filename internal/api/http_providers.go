package api

import (
	"net/http"
	"strconv"
	"strings"

	"fixit/internal/domain"
	"fixit/internal/models"
	"fixit/internal/service"
)

type registerProviderRequest struct {
	Skills []string `json:"skills" validate:"required,min=1,dive,required"`
}

type locationRequest struct {
	Lat     *float64 `json:"lat" validate:"required,min=-90,max=90"`
	Lon     *float64 `json:"lon" validate:"required,min=-180,max=180"`
	Address *string  `json:"address,omitempty" validate:"omitempty,max=500"`
}

type skillRequest struct {
	Skill string `json:"skill" validate:"required"`
}

func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.backend.Catalog.ListServices(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if services == nil {
		services = []*models.Service{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (s *HTTPServer) handleCategories(w http.ResponseWriter, r *http.Request) {
	counts, err := s.backend.Catalog.CountByCategory(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if counts == nil {
		counts = []models.CategoryCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": counts})
}

func (s *HTTPServer) handleNearbyProviders(w http.ResponseWriter, r *http.Request) {
	q := service.NearbyQuery{ServiceType: strings.TrimSpace(r.URL.Query().Get("service_type"))}

	var err error
	if q.Lat, err = queryFloat(r, "lat"); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if q.Lon, err = queryFloat(r, "lon"); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	radius, err := queryFloat(r, "radius_km")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if radius != nil {
		q.RadiusKM = *radius
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeServiceError(w, r, domain.Validation("invalid_query", "limit must be a non-negative integer"))
			return
		}
		q.Limit = limit
	}

	providers, err := s.backend.Matching.NearbyProviders(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if providers == nil {
		providers = []service.NearbyProvider{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": providers})
}

func (s *HTTPServer) handleRegisterProvider(w http.ResponseWriter, r *http.Request, p models.Principal) {
	var req registerProviderRequest
	if err := s.decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	provider, err := s.backend.Providers.RegisterProvider(r.Context(), p.UserID, req.Skills)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, provider)
}

func (s *HTTPServer) handleUpdateLocation(w http.ResponseWriter, r *http.Request, p models.Principal) {
	var req locationRequest
	if err := s.decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.backend.Providers.UpdateLocation(r.Context(), p.UserID, *req.Lat, *req.Lon, req.Address); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *HTTPServer) handleUpdateTracking(w http.ResponseWriter, r *http.Request, p models.Principal) {
	var req locationRequest
	if err := s.decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.backend.Providers.UpdateTrackingLocation(r.Context(), p.UserID, *req.Lat, *req.Lon); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *HTTPServer) handleTrack(w http.ResponseWriter, r *http.Request, p models.Principal) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	info, err := s.backend.Providers.Track(r.Context(), id, p.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *HTTPServer) handleAddSkill(w http.ResponseWriter, r *http.Request, p models.Principal) {
	var req skillRequest
	if err := s.decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	provider, err := s.backend.Providers.AddSkill(r.Context(), p.UserID, req.Skill)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, provider)
}

func (s *HTTPServer) handleRemoveSkill(w http.ResponseWriter, r *http.Request, p models.Principal) {
	var req skillRequest
	if err := s.decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	provider, err := s.backend.Providers.RemoveSkill(r.Context(), p.UserID, req.Skill)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, provider)
}
