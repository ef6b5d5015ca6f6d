package api

import (
	"net/http"

	"github.com/seenimoa/papertrade/internal/config"
)

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config   *config.Config `json:"config"`
	Provider string         `json:"provider"`
	Broker   string         `json:"broker"`
}

// handleGetConfig returns the running configuration. Changes require a
// restart, so there is no write endpoint.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config:   s.cfg,
			Provider: s.cfg.Quotes.Provider,
			Broker:   s.broker.Name(),
		},
	})
}
