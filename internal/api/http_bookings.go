package api

import (
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"time"

	"fixit/internal/domain"
	"fixit/internal/models"
	"fixit/internal/service"
)

const maxCompletionImages = 10

type createBookingRequest struct {
	ServiceID     *int64     `json:"service_id" validate:"omitempty,gt=0"`
	ProviderID    *int64     `json:"provider_id" validate:"omitempty,gt=0"`
	ScheduledTime *time.Time `json:"scheduled_time"`
	Price         *float64   `json:"price" validate:"omitempty,gte=0"`
	Lat           *float64   `json:"location_lat" validate:"omitempty,min=-90,max=90"`
	Lon           *float64   `json:"location_lon" validate:"omitempty,min=-180,max=180"`
	Notes         string     `json:"notes" validate:"max=2000"`
}

type createBookingResponse struct {
	Booking *models.Booking `json:"booking"`
	Service *models.Service `json:"service"`
	Targets []string        `json:"targets"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type completionRequest struct {
	Notes  string   `json:"notes" validate:"max=4000"`
	Images []string `json:"images" validate:"max=10,dive,required"`
}

// ratingRequest decodes any JSON number so that fractional ratings get a
// rating error instead of a generic decode failure.
type ratingRequest struct {
	Rating float64 `json:"rating"`
	Review string  `json:"review" validate:"max=2000"`
}

func (r ratingRequest) stars() (int, error) {
	if r.Rating < 1 || r.Rating > 5 || r.Rating != math.Trunc(r.Rating) {
		return 0, domain.ErrInvalidRating.WithMessage("rating must be an integer between 1 and 5")
	}
	return int(r.Rating), nil
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request, p models.Principal) {
	var req createBookingRequest
	if err := s.decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	res, err := s.backend.Matching.CreateBooking(r.Context(), p, service.CreateBookingRequest{
		ServiceID:     req.ServiceID,
		ProviderID:    req.ProviderID,
		ScheduledTime: req.ScheduledTime,
		Price:         req.Price,
		Lat:           req.Lat,
		Lon:           req.Lon,
		Notes:         req.Notes,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createBookingResponse{Booking: res.Booking, Service: res.Service, Targets: res.Targets})
}

// handleListBookings lists the caller's own bookings, or the assigned ones
// for providers.
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request, p models.Principal) {
	var (
		bookings []*models.Booking
		err      error
	)
	if p.Role == models.RoleProvider {
		var provider *models.Provider
		provider, err = s.backend.Providers.ResolveProvider(r.Context(), p.UserID)
		if err == nil {
			bookings, err = s.backend.Lifecycle.ListProviderBookings(r.Context(), provider.ID)
		}
	} else {
		bookings, err = s.backend.Lifecycle.ListUserBookings(r.Context(), p.UserID)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request, p models.Principal) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	details, err := s.backend.Lifecycle.GetBooking(r.Context(), p, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

type providerAction func(bookingID, providerID int64) (*models.Booking, error)

// providerTransition resolves the caller's provider profile and applies action.
func (s *HTTPServer) providerTransition(w http.ResponseWriter, r *http.Request, p models.Principal, action providerAction) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	provider, err := s.backend.Providers.ResolveProvider(r.Context(), p.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := action(id, provider.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleAccept(w http.ResponseWriter, r *http.Request, p models.Principal) {
	s.providerTransition(w, r, p, func(bookingID, providerID int64) (*models.Booking, error) {
		return s.backend.Lifecycle.Accept(r.Context(), bookingID, providerID)
	})
}

func (s *HTTPServer) handleReject(w http.ResponseWriter, r *http.Request, p models.Principal) {
	s.providerTransition(w, r, p, func(bookingID, providerID int64) (*models.Booking, error) {
		return s.backend.Lifecycle.Reject(r.Context(), bookingID, providerID)
	})
}

func (s *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request, p models.Principal) {
	s.providerTransition(w, r, p, func(bookingID, providerID int64) (*models.Booking, error) {
		return s.backend.Lifecycle.Start(r.Context(), bookingID, providerID)
	})
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request, p models.Principal) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := s.backend.Lifecycle.Cancel(r.Context(), p, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request, p models.Principal) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req statusRequest
	if err := s.decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := s.backend.Lifecycle.UpdateStatus(r.Context(), p, id, req.Status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleSubmitCompletion accepts either JSON with image paths or a multipart
// form with "notes" and "images" files.
func (s *HTTPServer) handleSubmitCompletion(w http.ResponseWriter, r *http.Request, p models.Principal) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	provider, err := s.backend.Providers.ResolveProvider(r.Context(), p.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var completion *models.Completion
	if isMultipart(r) {
		notes, uploads, ferr := s.readCompletionForm(w, r)
		if ferr != nil {
			s.writeServiceError(w, r, ferr)
			return
		}
		completion, err = s.backend.Lifecycle.UploadCompletion(r.Context(), id, provider.ID, notes, uploads)
	} else {
		var req completionRequest
		if err := s.decode(r, &req); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		completion, err = s.backend.Lifecycle.SubmitCompletion(r.Context(), id, provider.ID, req.Notes, req.Images)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, completion)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func (s *HTTPServer) readCompletionForm(w http.ResponseWriter, r *http.Request) (string, []service.Upload, error) {
	limit := s.backend.MaxUploadBytes*maxCompletionImages + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", nil, domain.Validation("invalid_request", "invalid multipart form").Wrap(err)
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["images"]
	if len(files) > maxCompletionImages {
		return "", nil, domain.Validation("too_many_files", fmt.Sprintf("at most %d images", maxCompletionImages))
	}

	uploads := make([]service.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return "", nil, domain.Validation("invalid_request", "unreadable file").Wrap(err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return "", nil, domain.Validation("invalid_request", "unreadable file").Wrap(err)
		}
		uploads = append(uploads, service.Upload{Name: fh.Filename, Data: data})
	}
	return r.FormValue("notes"), uploads, nil
}

func (s *HTTPServer) handleGetCompletion(w http.ResponseWriter, r *http.Request, p models.Principal) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	completion, err := s.backend.Lifecycle.GetCompletion(r.Context(), p, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completion)
}

func (s *HTTPServer) handleRate(w http.ResponseWriter, r *http.Request, p models.Principal) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req ratingRequest
	if err := s.decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	stars, err := req.stars()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := s.backend.Lifecycle.Rate(r.Context(), id, p.UserID, stars, req.Review)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
