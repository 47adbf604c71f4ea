package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"solana-pool-sniper/internal/execution"
	"solana-pool-sniper/internal/observability"
)

// confirmer is the part of the coordinator the operator endpoints drive.
type confirmer interface {
	Confirm(requestID string) error
	Reject(requestID string) error
	Pending() []string
}

// newMetricsMux serves health and metrics.
func newMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/health", observability.HealthHandler())
	mux.Handle("/metrics", observability.Handler())
	return mux
}

// newConfirmMux serves the trade confirmation endpoints. A non-empty token
// is required as a bearer credential on every request.
func newConfirmMux(c confirmer, token string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /pending", func(w http.ResponseWriter, r *http.Request) {
		ids := c.Pending()
		sort.Strings(ids)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string][]string{"pending": ids})
	})
	mux.HandleFunc("POST /confirm/{requestID}", func(w http.ResponseWriter, r *http.Request) {
		writeDecision(w, c.Confirm(r.PathValue("requestID")))
	})
	mux.HandleFunc("POST /reject/{requestID}", func(w http.ResponseWriter, r *http.Request) {
		writeDecision(w, c.Reject(r.PathValue("requestID")))
	})

	if token == "" {
		return mux
	}
	return requireBearer(token, mux)
}

func requireBearer(token string, next http.Handler) http.Handler {
	want := []byte(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeDecision(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, execution.ErrNoPendingConfirmation):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
