package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"manga-translate-pipeline/internal/domain"
	"manga-translate-pipeline/internal/domain/model"
	"manga-translate-pipeline/internal/domain/ports/security"
	"manga-translate-pipeline/internal/infra/importer"
)

// uploads are buffered in memory; a typical volume is well under this.
const maxUploadBytes = 256 << 20

type jobCreateRequest struct {
	Title    string         `json:"title"`
	Config   map[string]any `json:"config"`
	Notes    string         `json:"notes"`
	Tags     []string       `json:"tags"`
	Priority int            `json:"priority"`
	APIKey   *string        `json:"api_key"`
}

type jobUpdateRequest struct {
	Title    *string         `json:"title"`
	Config   *map[string]any `json:"config"`
	Notes    *string         `json:"notes"`
	Tags     *[]string       `json:"tags"`
	Priority *int            `json:"priority"`
	APIKey   *string         `json:"api_key"`
}

func (s *Server) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req jobCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.Validationf("invalid request body"))
		return
	}
	if req.Title == "" {
		s.writeError(w, domain.Validationf("title is required"))
		return
	}

	job := &model.Job{
		Title:    req.Title,
		Status:   model.JobStatusQueued,
		Config:   req.Config,
		Notes:    req.Notes,
		Tags:     req.Tags,
		Priority: req.Priority,
	}
	if req.APIKey != nil && *req.APIKey != "" {
		enc, err := s.vault.Encrypt(*req.APIKey)
		if err != nil {
			s.writeError(w, err)
			return
		}
		job.APIKeyEncrypted = enc
		job.APIKeyLast4 = security.Last4(*req.APIKey)
	}
	if err := s.jobs.Save(ctx, nil, job); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobView(job))
}

func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, toJobView(j))
	}
	writeJSON(w, http.StatusOK, struct {
		Data []jobView `json:"data"`
	}{Data: views})
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.FindByID(r.Context(), nil, chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

// handleJobUpdate applies a partial update. Title, notes, tags and
// priority may change at any time; config and credential edits are
// rejected once the job is locked.
func (s *Server) handleJobUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	job, err := s.jobs.FindByID(ctx, nil, chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req jobUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.Validationf("invalid request body"))
		return
	}

	if req.Config != nil || req.APIKey != nil {
		if !job.Editable() {
			s.writeError(w, domain.Conflictf("job %s is locked; config and credential edits are not allowed", job.ID))
			return
		}
	}
	if req.Title != nil {
		job.Title = *req.Title
	}
	if req.Notes != nil {
		job.Notes = *req.Notes
	}
	if req.Tags != nil {
		job.Tags = *req.Tags
	}
	if req.Priority != nil {
		job.Priority = *req.Priority
	}
	if req.Config != nil {
		job.Config = *req.Config
	}
	if req.APIKey != nil {
		if *req.APIKey == "" {
			job.APIKeyEncrypted = ""
			job.APIKeyLast4 = ""
		} else {
			enc, err := s.vault.Encrypt(*req.APIKey)
			if err != nil {
				s.writeError(w, err)
				return
			}
			job.APIKeyEncrypted = enc
			job.APIKeyLast4 = security.Last4(*req.APIKey)
		}
	}

	if err := s.jobs.Save(ctx, nil, job); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

func (s *Server) handleJobDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Delete(r.Context(), nil, chi.URLParam(r, "jobID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleJobImport expands an uploaded CBZ/ZIP or PDF into pages and moves
// the job to ready.
func (s *Server) handleJobImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	job, err := s.jobs.FindByID(ctx, nil, chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !job.Editable() {
		s.writeError(w, domain.Conflictf("job %s is locked; pages cannot be imported", job.ID))
		return
	}

	name, data, err := readUpload(r, "file")
	if err != nil {
		s.writeError(w, err)
		return
	}

	count, err := s.importer.ImportArchive(ctx, job, name, data)
	if err != nil {
		s.writeError(w, err)
		return
	}

	job.TotalPages = count
	job.Status = model.JobStatusReady
	if err := s.jobs.Save(ctx, nil, job); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

// handleJobAppendPages adds loose image uploads after the existing pages.
func (s *Server) handleJobAppendPages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	job, err := s.jobs.FindByID(ctx, nil, chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !job.Editable() {
		s.writeError(w, domain.Conflictf("job %s is locked; pages cannot be added", job.ID))
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, domain.Validationf("invalid multipart body: %v", err))
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.writeError(w, domain.Validationf("no files uploaded"))
		return
	}

	files := make([]importer.File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			s.writeError(w, err)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.writeError(w, err)
			return
		}
		files = append(files, importer.File{Name: h.Filename, Data: data})
	}

	total, err := s.importer.AppendPages(ctx, job, files)
	if err != nil {
		s.writeError(w, err)
		return
	}

	job.TotalPages = total
	job.Status = model.JobStatusReady
	if err := s.jobs.Save(ctx, nil, job); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

func (s *Server) handleJobCover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	job, err := s.jobs.FindByID(ctx, nil, chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	name, data, err := readUpload(r, "file")
	if err != nil {
		s.writeError(w, err)
		return
	}
	ext := imageExtOf(name)
	if ext == "" {
		s.writeError(w, domain.Validationf("unsupported image type: %s", name))
		return
	}

	path, err := s.artifacts.WriteCover(job.ID, ext, data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	job.CoverPath = path
	if err := s.jobs.Save(ctx, nil, job); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

func (s *Server) handleJobRun(w http.ResponseWriter, r *http.Request) {
	job, err := s.pipeline.Run(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobView(job))
}

func (s *Server) handleJobPages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := chi.URLParam(r, "jobID")
	if _, err := s.jobs.FindByID(ctx, nil, jobID); err != nil {
		s.writeError(w, err)
		return
	}
	pages, err := s.pages.ListByJob(ctx, jobID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]pageView, 0, len(pages))
	for _, p := range pages {
		views = append(views, toPageView(p))
	}
	writeJSON(w, http.StatusOK, struct {
		Data []pageView `json:"data"`
	}{Data: views})
}

// readUpload extracts a single multipart file field into memory.
func readUpload(r *http.Request, field string) (string, []byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", nil, domain.Validationf("invalid multipart body: %v", err)
	}
	f, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, domain.Validationf("missing %q file field", field)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}
