package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"fixit/internal/domain"
	"fixit/internal/models"
)

const dateLayout = "2006-01-02"

func (s *HTTPServer) handleAdminStats(w http.ResponseWriter, r *http.Request, p models.Principal) {
	stats, err := s.backend.Admin.Stats(r.Context(), p)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleAdminExport streams an XLSX export. from/to default to the last 30 days.
func (s *HTTPServer) handleAdminExport(w http.ResponseWriter, r *http.Request, p models.Principal) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)

	var err error
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		if from, err = time.Parse(dateLayout, raw); err != nil {
			s.writeServiceError(w, r, domain.Validation("invalid_query", "invalid from; expected YYYY-MM-DD"))
			return
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		if to, err = time.Parse(dateLayout, raw); err != nil {
			s.writeServiceError(w, r, domain.Validation("invalid_query", "invalid to; expected YYYY-MM-DD"))
			return
		}
		// Inclusive end date.
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	path, err := s.backend.Admin.ExportBookings(r.Context(), p, from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

func (s *HTTPServer) handleAdminLedgerReplay(w http.ResponseWriter, r *http.Request, p models.Principal) {
	n, err := s.backend.Admin.ReplayLedger(r.Context(), p)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"requeued": n})
}
