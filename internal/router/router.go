package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sajian-pos/api/internal/cache"
	"github.com/sajian-pos/api/internal/clock"
	"github.com/sajian-pos/api/internal/config"
	"github.com/sajian-pos/api/internal/database"
	"github.com/sajian-pos/api/internal/handler"
	mw "github.com/sajian-pos/api/internal/middleware"
	"github.com/sajian-pos/api/internal/service"
	"github.com/sajian-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication, outlet scoping, and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/outlets/{oid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Catalog reads go through the cache when Redis is configured.
	var catalog service.CatalogStore = cache.NewNoop(queries)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		catalog = cache.NewRedis(queries, rdb, 5*time.Minute)
	}

	clk := clock.Real{}
	orderService := service.NewOrderService(pool,
		func(db database.DBTX) service.OrderStore { return database.New(db) },
		catalog, clk)
	revisionService := service.NewRevisionService(pool,
		func(db database.DBTX) service.RevisionStore { return database.New(db) },
		clk)
	paymentService := service.NewPaymentService(pool,
		func(db database.DBTX) service.PaymentStore { return database.New(db) },
		clk)

	orderHandler := handler.NewOrderHandler(orderService, queries, hub)
	revisionHandler := handler.NewRevisionHandler(revisionService, queries, hub)
	paymentHandler := handler.NewPaymentHandler(paymentService, queries, hub)
	kitchenHandler := handler.NewKitchenHandler(orderService, hub)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/outlets/{oid}", func(r chi.Router) {
			r.Use(mw.RequireOutlet)

			r.Route("/orders", func(r chi.Router) {
				orderHandler.RegisterRoutes(r)

				r.Route("/{id}/revisions", revisionHandler.RegisterRoutes)
				r.Get("/{id}/payments", paymentHandler.List)
				r.Patch("/{id}/lines/{lid}/kitchen-status", kitchenHandler.UpdateStatus)
			})

			// Kitchen tokens cannot touch money.
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole("CASHIER", "MANAGER", "OWNER"))
				r.Post("/payments/{pid}/settle", paymentHandler.Settle)
				r.Post("/adjustments/{aid}/capture", paymentHandler.Capture)
			})
		})
	})

	return r
}
