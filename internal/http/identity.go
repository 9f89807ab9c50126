package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"contributi/internal/core"
)

type actorKey struct{}

// actorFrom returns the authenticated member stored on the request context.
func actorFrom(ctx context.Context) *core.Member {
	actor, _ := ctx.Value(actorKey{}).(*core.Member)
	return actor
}

// withIdentity resolves the bearer token to a member and rejects requests
// without a valid one. Lookups go through a short-lived cache so every call
// does not hit the members table.
func (s *Server) withIdentity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}

		actor, ok := s.identityCache.Get(token)
		if !ok {
			member, err := s.repo.GetMemberByToken(r.Context(), token)
			if err != nil {
				if errors.Is(err, core.ErrNotFound) {
					writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
					return
				}
				writeError(w, r, err)
				return
			}
			actor = member
			s.identityCache.Set(token, actor)
		}

		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
