package daemon

import (
	"net/http"
	"strings"
)

// authMiddleware guards the streaming API with a bearer token. An empty
// token leaves the feeds open; otherwise every request must present
// "Authorization: Bearer <token>". Rejections use the same JSON error body
// as the feed endpoints so clients decode them uniformly.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || presented != token {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
