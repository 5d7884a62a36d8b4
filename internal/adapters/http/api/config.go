package api

import "net/http"

// ConsentProvider reports whether client telemetry needs explicit consent.
type ConsentProvider interface {
	ConsentRequired() bool
}

// ConfigHandler serves the browser-facing configuration.
type ConfigHandler struct {
	consent ConsentProvider
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(consent ConsentProvider) *ConfigHandler {
	return &ConfigHandler{consent: consent}
}

type configResponse struct {
	ConsentRequired bool `json:"consentRequired"`
}

// HandleConfig handles GET /config requests.
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, configResponse{ConsentRequired: h.consent.ConsentRequired()})
}
