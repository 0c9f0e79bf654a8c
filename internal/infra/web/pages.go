package web

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"manga-translate-pipeline/internal/domain"
	"manga-translate-pipeline/internal/domain/model"
)

func (s *Server) handlePageGet(w http.ResponseWriter, r *http.Request) {
	page, err := s.pages.FindByID(r.Context(), nil, chi.URLParam(r, "pageID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageView(page))
}

func (s *Server) handlePageLayoutGet(w http.ResponseWriter, r *http.Request) {
	page, err := s.pages.FindByID(r.Context(), nil, chi.URLParam(r, "pageID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if page.JSONPath == "" {
		s.writeError(w, domain.ErrNotFound)
		return
	}
	data, err := s.artifacts.Read(page.JSONPath)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handlePageLayoutPut replaces the extracted layout with an operator edit.
// The page lands in A_done so the render stage picks up the new text.
func (s *Server) handlePageLayoutPut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := s.pages.FindByID(ctx, nil, chi.URLParam(r, "pageID"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var layout model.PageLayout
	if err := json.NewDecoder(r.Body).Decode(&layout); err != nil {
		s.writeError(w, domain.Validationf("invalid layout body: %v", err))
		return
	}

	data, err := json.MarshalIndent(layout, "", "  ")
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonPath, err := s.artifacts.WriteLayout(page.JobID, page.PageIndex, data)
	if err != nil {
		s.writeError(w, err)
		return
	}

	page.JSONPath = jsonPath
	page.Status = model.PageStatusADone
	page.Error = ""
	if err := s.pages.Save(ctx, nil, page); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageView(page))
}

func (s *Server) handlePageRerun(w http.ResponseWriter, r *http.Request) {
	stage := model.Stage(r.URL.Query().Get("stage"))
	if stage != model.StageA && stage != model.StageB {
		s.writeError(w, domain.Validationf("stage must be A or B"))
		return
	}
	if err := s.pipeline.Rerun(r.Context(), chi.URLParam(r, "pageID"), stage); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handlePageImage(w http.ResponseWriter, r *http.Request) {
	page, err := s.pages.FindByID(r.Context(), nil, chi.URLParam(r, "pageID"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var imgPath string
	switch kind := r.URL.Query().Get("kind"); kind {
	case "", "original":
		imgPath = page.OriginalPath
	case "output":
		imgPath = page.OutputPath
	default:
		s.writeError(w, domain.Validationf("kind must be original or output"))
		return
	}
	if imgPath == "" {
		s.writeError(w, domain.ErrNotFound)
		return
	}

	data, err := s.artifacts.Read(imgPath)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeOf(imgPath))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func imageExtOf(name string) string {
	switch ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), ".")); ext {
	case "png", "jpg", "jpeg", "webp":
		return ext
	default:
		return ""
	}
}

func contentTypeOf(p string) string {
	switch imageExtOf(p) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
