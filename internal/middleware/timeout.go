package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"rainbow-buyers/internal/model"
)

// Timeout bounds handler time. On expiry the client gets the 503 envelope; the
// handler's context is cancelled and its late writes are discarded.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	body, _ := json.Marshal(model.APIResponse{
		Success:    false,
		StatusCode: http.StatusServiceUnavailable,
		Message:    "Request timed out",
	})

	return func(next http.Handler) http.Handler {
		limited := http.TimeoutHandler(next, timeout, string(body))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Handlers that answer in time replace this with their own type.
			w.Header().Set("Content-Type", "application/json")
			limited.ServeHTTP(w, r)
		})
	}
}
