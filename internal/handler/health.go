package handler

import (
	"encoding/json"
	"net/http"
)

type loadChecker interface {
	LoadErr() error
}

// Health reports whether the template store loaded its backing file cleanly.
func Health(templates loadChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK

		if err := templates.LoadErr(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
