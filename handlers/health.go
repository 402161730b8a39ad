package handlers

import (
	"net/http"
)

// HealthHandler serves /health. It answers "OK", or "BUSY" while busy
// reports a session in progress.
func HealthHandler(busy func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if busy != nil && busy() {
			_, _ = w.Write([]byte("BUSY"))
			return
		}
		_, _ = w.Write([]byte("OK"))
	}
}
