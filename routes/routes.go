package routes

import (
	_ "embed"
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/battle-tournament/handlers"
	"github.com/Dosada05/battle-tournament/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed openapi.json
var openAPIDoc []byte

type Options struct {
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *slog.Logger
}

func SetupRoutes(
	router *chi.Mux,
	opts Options,
	authHandler *handlers.AuthHandler,
	tournamentHandler *handlers.TournamentHandler,
	contestHandler *handlers.ContestHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestLogger(opts.Logger))
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/docs/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(openAPIDoc)
	})
	router.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	// websocket живёт вне таймаута и лимитера
	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitRPS, opts.RateLimitBurst))
		r.Use(chiMiddleware.Timeout(30 * time.Second))

		r.Post("/auth/token", authHandler.TokenHandler)

		// Публичные маршруты: табло и просмотр
		r.Get("/tournaments/{tournamentID}", tournamentHandler.GetByIDHandler)
		r.Get("/tournaments/{tournamentID}/overview", tournamentHandler.OverviewHandler)
		r.Get("/tournaments/{tournamentID}/queue", contestHandler.QueueHandler)
		r.Get("/tournaments/{tournamentID}/queue/next", contestHandler.NextPendingHandler)
		r.Get("/categories/{categoryID}/standings", tournamentHandler.StandingsHandler)

		// Маршруты только для организаторов и судей
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(opts.JWTSecret))
			r.Use(middleware.RequireStaff)

			r.Post("/tournaments", tournamentHandler.CreateHandler)
			r.Post("/tournaments/{tournamentID}/categories", tournamentHandler.AddCategoryHandler)
			r.Get("/tournaments/{tournamentID}/advance", tournamentHandler.CheckAdvanceHandler)
			r.Post("/tournaments/{tournamentID}/advance", tournamentHandler.AdvanceHandler)

			r.Post("/categories/{categoryID}/contestants", tournamentHandler.RegisterContestantHandler)
			r.Post("/categories/{categoryID}/cutoff-tie", contestHandler.CutoffTieHandler)
			r.Post("/pools/{poolID}/tie", contestHandler.PoolTieHandler)

			r.Route("/contests/{contestID}", func(r chi.Router) {
				r.Post("/activate", contestHandler.ActivateHandler)
				r.Put("/position", contestHandler.ReorderHandler)
				r.Post("/scores", contestHandler.ScoreHandler)
				r.Post("/complete", contestHandler.CompletePreselectionHandler)
				r.Post("/pool-result", contestHandler.PoolResultHandler)
				r.Post("/final-result", contestHandler.FinalResultHandler)
				r.Post("/votes", contestHandler.VoteHandler)
			})
		})
	})
}
