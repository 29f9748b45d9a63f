package middleware

import (
	"net/http"
	"strings"
	"time"

	"sector-registry/sectorhub/internal/auth"
	"sector-registry/sectorhub/internal/common"
	"sector-registry/sectorhub/internal/constants"
)

// ActorHeader carries the acting user when no JWT secret is configured
const ActorHeader = "X-User-Email"

// ActorMiddleware stores the acting user in the request context. With a secret
// the actor comes from an HS256 bearer token and requests without one are
// rejected; without a secret the X-User-Email header is trusted.
func ActorMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secret) == 0 {
				actor := strings.TrimSpace(r.Header.Get(ActorHeader))
				next.ServeHTTP(w, r.WithContext(auth.SetActor(r.Context(), actor)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				common.RespondError(w, time.Now(), nil, constants.MsgMissingBearerToken, http.StatusUnauthorized)
				return
			}

			claims, err := auth.ParseActorToken(secret, strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				common.RespondError(w, time.Now(), nil, constants.MsgInvalidBearerToken, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.SetActor(r.Context(), claims.Actor())))
		})
	}
}
