package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jonathan/teamgr/internal/dimension"
	"github.com/jonathan/teamgr/internal/store"
)

// TalentCreateRequest is the request body for POST /api/talents.
type TalentCreateRequest struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	CurrentRole string `json:"current_role"`
	Department  string `json:"department"`
}

// TalentUpdateRequest is the request body for PUT /api/talents/{id}.
// CardData, when present, replaces stored values key by key.
type TalentUpdateRequest struct {
	Name        *string        `json:"name"`
	Email       *string        `json:"email"`
	Phone       *string        `json:"phone"`
	CurrentRole *string        `json:"current_role"`
	Department  *string        `json:"department"`
	CardData    map[string]any `json:"card_data"`
}

// TalentResponse is the JSON shape of a talent.
type TalentResponse struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Phone       string         `json:"phone"`
	CurrentRole string         `json:"current_role"`
	Department  string         `json:"department"`
	Summary     string         `json:"summary"`
	CardData    map[string]any `json:"card_data"`
	Tags        []store.Tag    `json:"tags"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

func (s *Server) talentResponse(r *http.Request, t *store.Talent) TalentResponse {
	tags, err := s.store.ListTalentTags(r.Context(), t.ID)
	if err != nil {
		tags = nil
	}
	if tags == nil {
		tags = []store.Tag{}
	}
	return TalentResponse{
		ID:          t.ID,
		Name:        t.Name,
		Email:       t.Email,
		Phone:       t.Phone,
		CurrentRole: t.CurrentRole,
		Department:  t.Department,
		Summary:     t.Summary,
		CardData:    t.CardData,
		Tags:        tags,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.Format(time.RFC3339),
	}
}

// handleListTalents returns all talents.
func (s *Server) handleListTalents(w http.ResponseWriter, r *http.Request) {
	talents, err := s.store.ListTalents(r.Context())
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	out := make([]TalentResponse, 0, len(talents))
	for i := range talents {
		out = append(out, s.talentResponse(r, &talents[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(out),
		"items": out,
	})
}

// handleCreateTalent creates a talent whose card starts out with every
// registered dimension set to its exemplar value.
func (s *Server) handleCreateTalent(w http.ResponseWriter, r *http.Request) {
	var req TalentCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.badRequest(w, "name is required")
		return
	}

	card, err := s.initialCard(r.Context())
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	talent, err := s.store.CreateTalent(r.Context(), &store.Talent{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		CurrentRole: req.CurrentRole,
		Department:  req.Department,
		CardData:    card,
	})
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.talentResponse(r, talent))
}

// handleGetTalent returns one talent.
func (s *Server) handleGetTalent(w http.ResponseWriter, r *http.Request) {
	id, ok := s.talentID(w, r)
	if !ok {
		return
	}

	talent, err := s.store.GetTalent(r.Context(), id)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.talentResponse(r, talent))
}

// handleUpdateTalent updates profile fields and, when card_data is present,
// overwrites the named card keys. Manual edits do not go through the merge.
func (s *Server) handleUpdateTalent(w http.ResponseWriter, r *http.Request) {
	id, ok := s.talentID(w, r)
	if !ok {
		return
	}

	var req TalentUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "Invalid request body: "+err.Error())
		return
	}

	talent, err := s.store.GetTalent(r.Context(), id)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	if req.Name != nil {
		talent.Name = *req.Name
	}
	if req.Email != nil {
		talent.Email = *req.Email
	}
	if req.Phone != nil {
		talent.Phone = *req.Phone
	}
	if req.CurrentRole != nil {
		talent.CurrentRole = *req.CurrentRole
	}
	if req.Department != nil {
		talent.Department = *req.Department
	}

	if req.CardData != nil {
		for key, value := range req.CardData {
			talent.CardData[key] = value
		}
	} else {
		talent.CardData = nil
	}

	if err := s.store.UpdateTalent(r.Context(), talent); err != nil {
		s.errorResponse(w, err)
		return
	}

	updated, err := s.store.GetTalent(r.Context(), id)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.talentResponse(r, updated))
}

// handleDeleteTalent removes a talent and its entries.
func (s *Server) handleDeleteTalent(w http.ResponseWriter, r *http.Request) {
	id, ok := s.talentID(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteTalent(r.Context(), id); err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// initialCard builds a fresh card with one entry per registered dimension,
// each set to the dimension's exemplar value.
func (s *Server) initialCard(ctx context.Context) (map[string]any, error) {
	dims, err := s.registry.All(ctx)
	if err != nil {
		return nil, err
	}
	card := make(map[string]any, len(dims))
	for _, d := range dims {
		var v any
		if err := json.Unmarshal([]byte(d.Schema), &v); err != nil || v == nil {
			v = dimension.EmptyValue(d.Shape)
		}
		card[d.Key] = v
	}
	return card, nil
}

func (s *Server) talentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.badRequest(w, "invalid talent id")
		return 0, false
	}
	return id, true
}
