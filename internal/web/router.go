// Package web is the small operational HTTP surface: health and a
// stats snapshot. The bot itself talks to Telegram over long polling,
// not over this listener.
package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/udevs/promocast/internal/broadcast"
	"github.com/udevs/promocast/internal/premium"
)

type Stats struct {
	PremiumUsers    int `json:"premium_users"`
	PendingRequests int `json:"pending_requests"`
	ActiveJobs      int `json:"active_jobs"`
}

func Router(prem *premium.Service, sched *broadcast.Scheduler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		grants, err := prem.PremiumUsers()
		if err != nil {
			http.Error(w, "stats unavailable", http.StatusInternalServerError)
			return
		}
		reqs, err := prem.PendingRequests()
		if err != nil {
			http.Error(w, "stats unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Stats{
			PremiumUsers:    len(grants),
			PendingRequests: len(reqs),
			ActiveJobs:      sched.Count(),
		})
	})

	return r
}
