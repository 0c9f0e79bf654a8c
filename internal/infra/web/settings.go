package web

import (
	"encoding/json"
	"net/http"

	"manga-translate-pipeline/internal/domain"
	"manga-translate-pipeline/internal/domain/model"
)

type settingsView struct {
	Config      map[string]any `json:"config"`
	APIKeySet   bool           `json:"api_key_set"`
	APIKeyLast4 string         `json:"api_key_last4"`
}

func toSettingsView(s *model.GlobalSettings) settingsView {
	return settingsView{
		Config:      s.Config,
		APIKeySet:   s.APIKeyEncrypted != "",
		APIKeyLast4: s.APIKeyLast4,
	}
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	row, err := s.settings.Get(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(row))
}

func (s *Server) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Config map[string]any `json:"config"`
		APIKey *string        `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.Validationf("invalid request body"))
		return
	}

	row, err := s.settings.Update(r.Context(), req.Config, req.APIKey)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(row))
}
