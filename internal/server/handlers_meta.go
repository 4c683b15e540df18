package server

import (
	"net/http"
)

// DimensionResponse is the JSON shape of a card dimension.
type DimensionResponse struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Schema    string `json:"schema"`
	Shape     string `json:"shape"`
	IsDefault bool   `json:"is_default"`
	SortOrder int    `json:"sort_order"`
}

// handleListDimensions returns the current dimension registry.
func (s *Server) handleListDimensions(w http.ResponseWriter, r *http.Request) {
	dims, err := s.registry.All(r.Context())
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	out := make([]DimensionResponse, 0, len(dims))
	for _, d := range dims {
		out = append(out, DimensionResponse{
			Key:       d.Key,
			Label:     d.Label,
			Schema:    d.Schema,
			Shape:     string(d.Shape),
			IsDefault: d.IsDefault,
			SortOrder: d.SortOrder,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleLLMStats returns per-model usage aggregates.
func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.UsageSummary(r.Context())
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
