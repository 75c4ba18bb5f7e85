package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mbultel/postule/ratelimit"
	"github.com/mbultel/postule/store"
)

// cmdServe exposes session status, attempts, logs, and cancellation over
// HTTP. This is the cross-process cancellation path: a serve instance
// and a start instance share the SQLite file, and a cancel POSTed here
// stops the run at its next checkpoint.
func cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file")
	addr := fs.String("addr", ":"+env("PORT", "8085"), "listen address")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Counters are in-memory and per-process; this instance's limiter is
	// independent of the one enforcing limits inside a `start` run. The
	// ratelimit endpoint below reports this process's view only.
	limiter := ratelimit.New(cfg.limits())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		owner := r.URL.Query().Get("owner")
		if owner == "" {
			owner = cfg.Owner
		}
		sessions, err := st.ListSessionsByOwner(r.Context(), owner)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if sessions == nil {
			sessions = []*store.Session{}
		}
		writeJSON(w, 200, sessions)
	})

	r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			s, err := st.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if s == nil {
				writeError(w, 404, fmt.Errorf("session not found"))
				return
			}
			writeJSON(w, 200, s)
		})

		r.Post("/cancel", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "sessionID")
			if err := st.RequestCancel(r.Context(), id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, 404, err)
					return
				}
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 202, map[string]string{"id": id, "status": "cancel_requested"})
		})

		r.Get("/attempts", func(w http.ResponseWriter, r *http.Request) {
			attempts, err := st.ListAttempts(r.Context(), chi.URLParam(r, "sessionID"))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if attempts == nil {
				attempts = []*store.Attempt{}
			}
			writeJSON(w, 200, attempts)
		})

		r.Get("/logs", func(w http.ResponseWriter, r *http.Request) {
			logs, err := st.ListLogs(r.Context(), chi.URLParam(r, "sessionID"))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if logs == nil {
				logs = []*store.LogEntry{}
			}
			writeJSON(w, 200, logs)
		})
	})

	r.Get("/api/jobs/{jobID}", func(w http.ResponseWriter, r *http.Request) {
		j, err := st.GetJob(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if j == nil {
			writeError(w, 404, fmt.Errorf("job not found"))
			return
		}
		writeJSON(w, 200, j)
	})

	// Reflects this process's limiter only; a concurrently running
	// `start` process keeps its own counters.
	r.Get("/api/ratelimit/{platform}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, limiter.Snapshot(chi.URLParam(r, "platform")))
	})

	r.Post("/api/sweep", func(w http.ResponseWriter, r *http.Request) {
		days := queryInt(r, "days", 90)
		n, err := st.PurgeOlderThan(r.Context(), time.Duration(days)*24*time.Hour)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, map[string]int64{"purged": n})
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
