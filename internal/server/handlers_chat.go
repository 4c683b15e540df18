package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonathan/teamgr/internal/chat"
)

// ChatAnalyzeRequest is the request body for /api/chat/analyze and
// /api/chat/ask.
type ChatAnalyzeRequest struct {
	Query string `json:"query" validate:"required"`
}

// ChatAnswerRequest is the request body for /api/chat/answer.
type ChatAnswerRequest struct {
	Query         string   `json:"query" validate:"required"`
	DimensionKeys []string `json:"dimension_keys" validate:"required,min=1"`
}

// handleChatAnalyze runs only the dimension-selection phase.
func (s *Server) handleChatAnalyze(w http.ResponseWriter, r *http.Request) {
	var req ChatAnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.badRequest(w, "query is required")
		return
	}

	result, err := s.orchestrator.Analyze(r.Context(), req.Query)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleChatAnswer runs only the answer phase with caller-chosen dimensions.
func (s *Server) handleChatAnswer(w http.ResponseWriter, r *http.Request) {
	var req ChatAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.badRequest(w, "query and dimension_keys are required")
		return
	}

	result, err := s.orchestrator.Answer(r.Context(), req.Query, req.DimensionKeys)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleChatAsk runs the full two-phase pipeline.
func (s *Server) handleChatAsk(w http.ResponseWriter, r *http.Request) {
	var req ChatAnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.badRequest(w, "query is required")
		return
	}

	result, err := s.orchestrator.Ask(r.Context(), req.Query)
	if err != nil {
		if errors.Is(err, chat.ErrNoRelevantDimensions) {
			// Surface the analysis so the caller can see the reasoning.
			writeJSON(w, HTTPStatus(err), map[string]any{
				"error":    err.Error(),
				"phase":    result.Phase,
				"analysis": result.Analysis,
			})
			return
		}
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
