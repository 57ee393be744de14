package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/devblac/bridge-indexer/internal/metrics"
)

type Checker struct {
	DBPing  func(ctx context.Context) error
	RPCPing func(ctx context.Context) error
	// Cursors lists persisted cursor state for /cursors; optional.
	Cursors func(ctx context.Context) (any, error)
}

// Router serves /healthz, /metrics and /cursors.
func Router(checker Checker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK

		if checker.DBPing != nil {
			if err := checker.DBPing(ctx); err != nil {
				status["db"] = "fail"
				code = http.StatusServiceUnavailable
			} else {
				status["db"] = "ok"
			}
		}
		if checker.RPCPing != nil {
			if err := checker.RPCPing(ctx); err != nil {
				status["rpc"] = "fail"
				code = http.StatusServiceUnavailable
			} else {
				status["rpc"] = "ok"
			}
		}
		writeJSON(w, code, status)
	})

	r.Handle("/metrics", metrics.Handler())

	r.Get("/cursors", func(w http.ResponseWriter, r *http.Request) {
		if checker.Cursors == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "cursor listing disabled"})
			return
		}
		list, err := checker.Cursors(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, list)
	})
	return r
}

// Serve starts the HTTP server in the background.
func Serve(addr string, checker Checker) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Router(checker),
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
