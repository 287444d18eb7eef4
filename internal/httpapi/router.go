package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"framefarm/internal/httpapi/handlers"
	"framefarm/internal/httpkit"
	"framefarm/internal/pkg/logger"
	"framefarm/internal/pkg/middleware"
	"framefarm/internal/pkg/util"
)

type Deps = handlers.Deps

// requestTimeout bounds every API call; none of them does remote rendering.
const requestTimeout = 30 * time.Second

func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logger.NewDefault()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.Logging(d.Log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: util.CSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:8081",
			"http://localhost:5173",
		}),
		AllowedHeaders: []string{"Content-Type", "Accept", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}))
	r.Use(middleware.Timeout(requestTimeout))

	h := handlers.New(d)

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- PLANNING ----
	r.Post("/plan", middleware.WrapHandler(d.Log, h.PostPlan))
	r.Post("/plan/multi", middleware.WrapHandler(d.Log, h.PostPlanMulti))

	// ---- RUNS ----
	r.Get("/runs", middleware.WrapHandler(d.Log, h.ListRuns))
	r.Get("/runs/{sessionId}", middleware.WrapHandler(d.Log, h.GetRun))

	return r
}
