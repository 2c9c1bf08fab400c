package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/pickflow/separation/internal/config"
	"github.com/pickflow/separation/internal/health"
	"github.com/pickflow/separation/pkg/database"
	"github.com/pickflow/separation/pkg/middleware"
	"github.com/pickflow/separation/pkg/observability"
)

// NewRouter assembles the REST surface's routes and middleware chain, and
// mounts the caller-constructed wsapi handler at /ws/orders and the health
// routes alongside them. cache may be nil (the optional Redis connection
// failed at startup), in which case reads skip the response cache.
func NewRouter(server *Server, wsHandler http.Handler, healthChecker *health.Checker, cache *database.RedisClient, cfg *config.Config, logger *observability.Logger) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/ws/orders", wsHandler.ServeHTTP)
	healthChecker.RegisterRoutes(router)

	// reads: cacheable, short-TTL snapshots safe to serve slightly stale.
	reads := router.PathPrefix("/orders").Subrouter()
	reads.HandleFunc("", server.HandleList).Methods(http.MethodGet)
	reads.HandleFunc("/stats", server.HandleStats).Methods(http.MethodGet)
	reads.HandleFunc("/purchase-items", server.HandlePurchaseQueue).Methods(http.MethodGet)
	reads.HandleFunc("/{id:[0-9]+}", server.HandleGetSummary).Methods(http.MethodGet)
	reads.HandleFunc("/{id:[0-9]+}/detail", server.HandleGetDetail).Methods(http.MethodGet)
	reads.Use(jwtMiddleware(cfg, logger))
	if cache != nil {
		reads.Use(middleware.NewCacheMiddleware(cache, logger).Middleware())
	}

	// writes: mutate order state, never cached.
	writes := router.PathPrefix("/orders").Subrouter()
	writes.HandleFunc("/upload", server.HandleUpload).Methods(http.MethodPost)
	writes.HandleFunc("/confirm", server.HandleConfirm).Methods(http.MethodPost)
	writes.HandleFunc("/{id:[0-9]+}/items", server.HandleBatchUpdate).Methods(http.MethodPatch)
	writes.HandleFunc("/{id:[0-9]+}/items/{item_id:[0-9]+}/purchase", server.HandleSendToPurchase).Methods(http.MethodPatch)
	writes.HandleFunc("/{id:[0-9]+}/complete", server.HandleComplete).Methods(http.MethodPost)
	writes.Use(jwtMiddleware(cfg, logger))

	var handler http.Handler = router
	handler = middleware.Recovery(logger)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing(cfg.Observability.ServiceName)(handler)
	handler = middleware.RateLimit(cfg.RateLimit)(handler)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Security.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(handler)
}

// jwtMiddleware is a thin mux.MiddlewareFunc adapter over the shared JWT
// authentication middleware so it applies only to the authenticated order
// subrouter (the websocket endpoint authenticates itself via query param).
func jwtMiddleware(cfg *config.Config, logger *observability.Logger) mux.MiddlewareFunc {
	jwt := middleware.JWT(cfg.JWT.Secret)
	return func(next http.Handler) http.Handler {
		return jwt(next)
	}
}
