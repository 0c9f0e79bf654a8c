package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"manga-translate-pipeline/internal/domain"
	"manga-translate-pipeline/internal/domain/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Anything unclassified
// is a 500 with a generic body; the cause goes to the log, not the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case domain.IsConflict(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// jobView is the wire shape of a job. The encrypted credential never
// leaves the server.
type jobView struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Status      string         `json:"status"`
	Config      map[string]any `json:"config"`
	Notes       string         `json:"notes"`
	Tags        []string       `json:"tags"`
	Priority    int            `json:"priority"`
	Locked      bool           `json:"locked"`
	APIKeySet   bool           `json:"api_key_set"`
	APIKeyLast4 string         `json:"api_key_last4"`
	CoverPath   string         `json:"cover_path,omitempty"`
	TotalPages  int            `json:"total_pages"`
	DonePages   int            `json:"done_pages"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func toJobView(j *model.Job) jobView {
	return jobView{
		ID:          j.ID,
		Title:       j.Title,
		Status:      string(j.Status),
		Config:      j.Config,
		Notes:       j.Notes,
		Tags:        j.Tags,
		Priority:    j.Priority,
		Locked:      j.Locked,
		APIKeySet:   j.APIKeyEncrypted != "",
		APIKeyLast4: j.APIKeyLast4,
		CoverPath:   j.CoverPath,
		TotalPages:  j.TotalPages,
		DonePages:   j.DonePages,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

type pageView struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	PageIndex    int       `json:"page_index"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	OriginalPath string    `json:"original_path"`
	JSONPath     string    `json:"json_path,omitempty"`
	OutputPath   string    `json:"output_path,omitempty"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toPageView(p *model.Page) pageView {
	return pageView{
		ID:           p.ID,
		JobID:        p.JobID,
		PageIndex:    p.PageIndex,
		Status:       string(p.Status),
		Error:        p.Error,
		OriginalPath: p.OriginalPath,
		JSONPath:     p.JSONPath,
		OutputPath:   p.OutputPath,
		Version:      p.Version,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}
