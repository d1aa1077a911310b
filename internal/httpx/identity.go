package httpx

import (
	"context"
	"net/http"
	"strings"
)

// HeaderUserID carries the caller id resolved by the upstream auth gateway.
const HeaderUserID = "X-User-Id"

type userKey struct{}

// RequireUser rejects requests without a caller id with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "UNAUTHENTICATED", Message: "missing " + HeaderUserID + " header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, id)))
	})
}

// UserID returns the caller id stored by RequireUser.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}
