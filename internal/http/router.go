package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"taskboard/internal/auth"
	"taskboard/internal/board"
	"taskboard/internal/config"
	"taskboard/internal/http/handler"
	mw "taskboard/internal/http/middleware"
	"taskboard/internal/reminder"
)

type Deps struct {
	DB        *gorm.DB
	JWT       *auth.JWT
	Boards    *board.Service
	Reminders reminder.Store
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLogger)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	ah := &handler.AuthHandler{DB: d.DB, JWT: d.JWT}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	me := &handler.MeHandler{DB: d.DB}
	r.With(auth.RequireAuth(d.JWT)).Get("/me", me.Me)

	bh := &handler.BoardHandler{Svc: d.Boards}
	ch := &handler.CardHandler{Svc: d.Boards, Reminders: d.Reminders}
	rh := &handler.ReminderHandler{Store: d.Reminders}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Post("/boards", bh.Create)
		r.Post("/boards/{id}/members", bh.AddMember)
		r.Delete("/boards/{id}/members/{userID}", bh.RemoveMember)
		r.Post("/boards/{id}/lists", bh.CreateList)

		r.Post("/lists/{id}/cards", ch.Create)
		r.Get("/cards/{id}", ch.Get)
		r.Patch("/cards/{id}", ch.Update)
		r.Delete("/cards/{id}", ch.Delete)
		r.Post("/cards/{id}/members", ch.Assign)
		r.Delete("/cards/{id}/members/{userID}", ch.Unassign)
		r.Get("/cards/{id}/reminders", ch.ListReminders)

		r.Get("/admin/reminders/stats", rh.Stats)
	})

	return r
}
