package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"contributi/internal/core"
	"contributi/internal/storage"
)

const contributedAtLayout = "2006-01-02"

// contributionRequest is the wire form of a create or update. The amount is
// never part of it; every entry is recorded at the fixed monthly value.
type contributionRequest struct {
	MemberID      int64  `json:"member_id"`
	ContributedAt string `json:"contributed_at"`
	Notes         string `json:"notes"`
}

// toInput parses the wire form, reporting a malformed date as a field-level
// error rather than a generic 400.
func (req contributionRequest) toInput() (core.ContributionInput, error) {
	in := core.ContributionInput{MemberID: req.MemberID, Notes: req.Notes}
	if strings.TrimSpace(req.ContributedAt) != "" {
		parsed, err := time.Parse(contributedAtLayout, req.ContributedAt)
		if err != nil {
			ve := core.NewValidationError()
			ve.Add(core.FieldContributedAt, "contribution date must be formatted as YYYY-MM-DD")
			return in, ve
		}
		in.ContributedAt = parsed
	}
	return in, nil
}

type contributionResponse struct {
	ID                int64  `json:"id"`
	MemberID          int64  `json:"member_id"`
	MemberName        string `json:"member_name"`
	Amount            string `json:"amount"`
	AmountCents       int64  `json:"amount_cents"`
	ContributedAt     string `json:"contributed_at"`
	ContributionYear  int    `json:"contribution_year"`
	ContributionMonth int    `json:"contribution_month"`
	CreatedBy         int64  `json:"created_by"`
	CreatorName       string `json:"creator_name"`
	Notes             string `json:"notes"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func toContributionResponse(rec *storage.ContributionRecord) contributionResponse {
	return contributionResponse{
		ID:                rec.ID,
		MemberID:          rec.MemberID,
		MemberName:        rec.MemberName,
		Amount:            core.FormatCents(rec.AmountCents),
		AmountCents:       rec.AmountCents,
		ContributedAt:     rec.ContributedAt.Format(contributedAtLayout),
		ContributionYear:  rec.ContributionYear,
		ContributionMonth: rec.ContributionMonth,
		CreatedBy:         rec.CreatedBy,
		CreatorName:       rec.CreatorName,
		Notes:             rec.Notes,
		CreatedAt:         rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// handleContributions dispatches /api/contributions.
func (s *Server) handleContributions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListContributions(w, r)
	case http.MethodPost:
		s.handleCreateContribution(w, r)
	default:
		methodNotAllowed(w)
	}
}

// handleContributionByID dispatches /api/contributions/{id}.
func (s *Server) handleContributionByID(w http.ResponseWriter, r *http.Request) {
	id, ok := contributionID(r.URL.Path)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetContribution(w, r, id)
	case http.MethodPut:
		s.handleUpdateContribution(w, r, id)
	case http.MethodDelete:
		s.handleDeleteContribution(w, r, id)
	default:
		methodNotAllowed(w)
	}
}

func contributionID(path string) (int64, bool) {
	raw := strings.TrimPrefix(path, "/api/contributions/")
	if raw == "" || strings.Contains(raw, "/") {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) handleListContributions(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "page must be a positive integer"})
			return
		}
		page = parsed
	}

	result, err := s.ledger.List(r.Context(), actorFrom(r.Context()), page)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]contributionResponse, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, toContributionResponse(&result.Items[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":     items,
		"page":      result.Page,
		"page_size": result.PageSize,
		"total":     result.Total,
	})
}

func (s *Server) handleGetContribution(w http.ResponseWriter, r *http.Request, id int64) {
	rec, err := s.ledger.Get(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContributionResponse(rec))
}

func (s *Server) handleCreateContribution(w http.ResponseWriter, r *http.Request) {
	var req contributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	in, err := req.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := s.ledger.Create(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContributionResponse(rec))
}

func (s *Server) handleUpdateContribution(w http.ResponseWriter, r *http.Request, id int64) {
	var req contributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	in, err := req.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := s.ledger.Update(r.Context(), actorFrom(r.Context()), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContributionResponse(rec))
}

func (s *Server) handleDeleteContribution(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.ledger.Delete(r.Context(), actorFrom(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
