package http

import (
	"net/http"

	"contributi/internal/authz"
	"contributi/internal/core"
)

type memberResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// handleMembers lists the group's members, for picking who a contribution
// belongs to. Elevated roles only.
func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	if !authz.CanCreate(actorFrom(r.Context())) {
		writeError(w, r, core.ErrForbidden)
		return
	}

	members, err := s.repo.ListMembers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{ID: m.ID, Name: m.Name, Email: m.Email})
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}
