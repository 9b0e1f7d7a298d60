package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/solarhub/backend/internal/repository"
)

// CORSConfig controls which browser origins may call the API.
type CORSConfig struct {
	AllowedOrigins []string // "*" allows any origin
	MaxAge         int      // preflight cache, seconds
}

type Handler struct {
	db      repository.DB
	appName string
	cors    CORSConfig
}

func New(db repository.DB, appName string, cors CORSConfig) *Handler {
	return &Handler{db: db, appName: appName, cors: cors}
}

// CORS answers preflight requests itself and decorates every other response.
// The contact form is embedded on marketing pages, so the default is
// permissive.
func (h *Handler) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := h.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Expose-Headers", "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			w.Header().Set("Access-Control-Max-Age", strconv.Itoa(h.cors.MaxAge))
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) allowOrigin(origin string) string {
	if len(h.cors.AllowedOrigins) == 0 || slices.Contains(h.cors.AllowedOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(h.cors.AllowedOrigins, origin) {
		return origin
	}
	return ""
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "status", status, "error", err)
	}
}
