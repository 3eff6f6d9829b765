package auth

import (
	"net/http"
	"strings"

	"github.com/meridian-cmms/meridian-cmms/internal/platform/httpx"
	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

// RequireAPIKey authenticates every request with a bearer token or the
// X-API-Key header and stores the resolved actor in the request context.
func RequireAPIKey(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := requestToken(r)
			if token == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing API key")
				return
			}
			actor, err := service.Authenticate(r.Context(), token)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}

func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}
