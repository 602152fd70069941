package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gpg-expire-warner/internal/middleware"
)

// NewRouter はルーターを生成する。
func NewRouter(h *CheckHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/v1/keys/expiring", h.CheckExpiring)
	r.Get("/v1/checks", h.ListChecks)
	r.Get("/v1/checks/{check_id}", h.GetCheck)

	return otelhttp.NewHandler(r, "gpg-expire-warner")
}
