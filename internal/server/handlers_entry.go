package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/teamgr/internal/extraction"
	"github.com/jonathan/teamgr/internal/pdftext"
	"github.com/jonathan/teamgr/internal/store"
)

// TextEntryRequest is the request body for /api/entry/text.
type TextEntryRequest struct {
	TalentID int64  `json:"talent_id" validate:"required"`
	Content  string `json:"content" validate:"required"`
}

// EntryResponse is returned when an entry is accepted.
type EntryResponse struct {
	EntryID        uuid.UUID `json:"entry_id"`
	TalentID       int64     `json:"talent_id"`
	Status         string    `json:"status"`
	PollIntervalMs int64     `json:"poll_interval_ms"`
}

// EntryStatusResponse is the response for /api/entry/status/{id}.
type EntryStatusResponse struct {
	EntryID  uuid.UUID `json:"entry_id"`
	TalentID int64     `json:"talent_id"`
	Status   string    `json:"status"`
	Detail   string    `json:"detail,omitempty"`
}

// EntryLogResponse is one entry in a talent's history.
type EntryLogResponse struct {
	ID        uuid.UUID `json:"id"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt string    `json:"created_at"`
}

// handleSubmitText accepts a raw text note for background extraction.
func (s *Server) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	var req TextEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.badRequest(w, "talent_id and content are required")
		return
	}

	entry, err := s.worker.SubmitText(r.Context(), req.TalentID, req.Content)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, entryResponse(entry))
}

// handleSubmitPDF accepts a multipart PDF resume upload. Text is extracted
// up front; a resume with no extractable text is rejected.
func (s *Server) handleSubmitPDF(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(pdftext.MaxUploadBytes); err != nil {
		s.badRequest(w, "Invalid multipart form: "+err.Error())
		return
	}

	talentID, err := strconv.ParseInt(r.FormValue("talent_id"), 10, 64)
	if err != nil {
		s.badRequest(w, "talent_id is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.badRequest(w, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, pdftext.MaxUploadBytes+1))
	if err != nil {
		s.badRequest(w, "failed to read upload")
		return
	}

	text, err := pdftext.Extract(data)
	if err != nil {
		s.badRequest(w, fmt.Sprintf("failed to extract text from %s: %v", header.Filename, err))
		return
	}

	entry, err := s.worker.SubmitResumeText(r.Context(), talentID, text)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, entryResponse(entry))
}

// handleEntryStatus reports the processing state of one entry.
func (s *Server) handleEntryStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.badRequest(w, "invalid entry id")
		return
	}

	entry, err := s.tracker.Status(r.Context(), id)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EntryStatusResponse{
		EntryID:  entry.ID,
		TalentID: entry.TalentID,
		Status:   string(entry.Status),
		Detail:   entry.Detail,
	})
}

// handleListEntryLogs returns a talent's entry history, newest first.
func (s *Server) handleListEntryLogs(w http.ResponseWriter, r *http.Request) {
	talentID, err := strconv.ParseInt(r.PathValue("talent_id"), 10, 64)
	if err != nil {
		s.badRequest(w, "invalid talent id")
		return
	}
	if _, err := s.store.GetTalent(r.Context(), talentID); err != nil {
		s.errorResponse(w, err)
		return
	}

	logs, err := s.tracker.History(r.Context(), talentID)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	out := make([]EntryLogResponse, 0, len(logs))
	for _, e := range logs {
		out = append(out, EntryLogResponse{
			ID:        e.ID,
			Source:    string(e.Source),
			Content:   e.Content,
			Status:    string(e.Status),
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDeleteEntryLog removes one entry log. Card data the entry already
// merged stays in place.
func (s *Server) handleDeleteEntryLog(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.badRequest(w, "invalid entry id")
		return
	}

	if err := s.store.DeleteEntryLog(r.Context(), id); err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func entryResponse(entry *store.EntryLog) EntryResponse {
	return EntryResponse{
		EntryID:        entry.ID,
		TalentID:       entry.TalentID,
		Status:         string(entry.Status),
		PollIntervalMs: extraction.PollInterval.Milliseconds(),
	}
}
