package httptransport

import (
	"expvar"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the public, worker-internal and admin route
// groups. An empty worker or admin key leaves that group open, which
// is only sensible in local development.
func NewRouter(s *Server, adminKey, workerKey string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestIDHeader)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(APILogMiddleware())

		r.Get("/status", s.handleStatus)
		r.Get("/cycles/status", s.handleCycleStatus)

		r.Route("/prompts", func(r chi.Router) {
			r.Get("/", s.handleListPrompts)
			r.Get("/categories", s.handlePromptCategories)
			r.Get("/{id}", s.handleGetPrompt)
		})

		r.Post("/upload/presign", s.handlePresignUpload)
		r.Post("/submissions", s.handleCreateSubmission)
		r.Get("/submissions/{id}", s.handleGetSubmission)

		r.Group(func(r chi.Router) {
			r.Use(KeyAuthMiddleware(workerKey))
			r.Post("/evaluate/fetch", s.handleEvaluateFetch)
			r.Post("/evaluate/submit", s.handleEvaluateSubmit)
			r.Post("/evaluate/renew", s.handleEvaluateRenew)
		})

		r.Get("/scores/latest", s.handleScores)
		r.Get("/scores/{cycle_id}", s.handleScores)
		r.Get("/weights/latest", s.handleWeights)
		r.Get("/weights/{cycle_id}", s.handleWeights)

		r.Group(func(r chi.Router) {
			r.Use(KeyAuthMiddleware(adminKey))
			r.Post("/admin/prompts", s.handleCreatePrompt)
			r.Post("/admin/prompts/{id}/active", s.handleSetPromptActive)
			r.Post("/admin/cycles/{cycle_id}/block", s.handleSetBlockNumber)
			r.Get("/admin/miners/{uid}/rate", s.handleMinerRate)
		})
	})

	r.With(APILogMiddleware(), KeyAuthMiddleware(adminKey)).
		Method(http.MethodGet, "/debug/vars", expvar.Handler())

	return r
}
