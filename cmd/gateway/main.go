package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopfront/internal/badge"
	"shopfront/internal/bus"
	"shopfront/internal/config"
	"shopfront/internal/flow"
	"shopfront/internal/guard"
	"shopfront/internal/handler"
	"shopfront/internal/messaging"
	"shopfront/internal/middleware"
	"shopfront/internal/observability"
	"shopfront/internal/repository/postgres"
	"shopfront/internal/security"
	"shopfront/internal/session"
	"shopfront/internal/upstream"
	ws "shopfront/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}
	observability.InitLogger(logLevel, logFormat)

	slog.Info("starting storefront gateway")

	connCtx, connCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.PingContext(connCtx); err != nil {
		slog.Error("database ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to postgresql")

	sealer := security.NewSealer(cfg.SessionSecret)
	tokens := security.NewTokenManager()

	stateRepo, err := postgres.NewStateRepository(db, sealer)
	if err != nil {
		slog.Error("failed to prepare state repository", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer stateRepo.Close()

	manager := session.NewManager(stateRepo)

	// cross-instance session propagation
	listener, err := postgres.NewStateChangeListener(cfg.DatabaseURL, slog.Default())
	if err != nil {
		slog.Error("failed to start state change listener", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer listener.Close()

	events := bus.New()

	busCtx, busCancel := context.WithCancel(context.Background())
	defer busCancel()
	go func() {
		if err := events.Run(busCtx); err != nil && err != context.Canceled {
			slog.Error("event bus error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		for id := range listener.Changes() {
			applyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := manager.ApplyChange(applyCtx, id); err != nil {
				slog.Error("failed to apply external session change",
					slog.String("context_id", id),
					slog.String("error", err.Error()))
			} else {
				events.Publish(bus.Event{Type: bus.EventSessionChanged, ContextID: id})
			}
			cancel()
		}
	}()
	slog.Info("state change listener started")

	hub := ws.NewHub()

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && err != context.Canceled {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	client := upstream.NewClient(cfg.UpstreamAPIURL, events)

	badges := badge.NewRegistry(client, func(contextID string, count int) {
		c := count
		hub.Push(contextID, ws.ServerEvent{Type: "badge_count", Count: &c})
	})

	authFlow := flow.New(client, events)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the broker is optional; without one checkouts still work, they just
	// aren't announced
	var publisher *messaging.Publisher
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(context.Background(), 60*time.Second)
		publisher, err = messaging.NewPublisherWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer publisher.Close()
	} else {
		slog.Info("no rabbitmq url configured, event publishing disabled")
	}

	subscribeEvents(events, manager, badges, hub, publisher)

	authHandler := handler.NewAuthHandler(authFlow, client)
	catalogHandler := handler.NewCatalogHandler(client)
	cartHandler := handler.NewCartHandler(client, events, orderPublisher(publisher))
	orderHandler := handler.NewOrderHandler(client)
	adminHandler := handler.NewAdminHandler(client)
	wsHandler := handler.NewWebSocketHandler(hub, badges)

	secureCookies := cfg.IsProduction()

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.AllowedOrigins)))
	r.Use(middleware.Metrics())
	r.Use(middleware.CSRF(tokens, secureCookies))
	r.Use(middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig()))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(db, publisher))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.BrowserContext(manager, secureCookies))

		authLimiter := middleware.NewRateLimiter(5, 10)
		apiLimiter := middleware.NewRateLimiter(20, 50)

		r.Group(func(r chi.Router) {
			r.Use(authLimiter.Middleware())
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(apiLimiter.Middleware())

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.Me)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Guard(guard.PolicyPublic))
				r.Get("/products", catalogHandler.List)
				r.Get("/products/{id}", catalogHandler.Get)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.Guard(guard.PolicyShopping))
				r.Get("/cart", cartHandler.Get)
				r.Post("/cart", cartHandler.Add)
				r.Patch("/cart/items/{id}", cartHandler.UpdateItem)
				r.Delete("/cart/items/{id}", cartHandler.RemoveItem)
				r.Post("/checkout", cartHandler.Checkout)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.Guard(guard.PolicyOrders))
				r.Get("/orders", orderHandler.List)
				r.Get("/orders/{id}", orderHandler.Get)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.Guard(guard.PolicyAdmin))
				r.Get("/admin/dashboard", adminHandler.Dashboard)
				r.Get("/admin/products", adminHandler.Products)
				r.Post("/admin/products", adminHandler.CreateProduct)
				r.Put("/admin/products/{id}", adminHandler.UpdateProduct)
				r.Delete("/admin/products/{id}", adminHandler.DeleteProduct)
				r.Get("/admin/orders", adminHandler.Orders)
				r.Get("/admin/users", adminHandler.Users)
			})
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.BrowserContext(manager, secureCookies))
		r.Get("/ws", wsHandler.HandleConnection)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("gateway listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down gateway")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	hubCancel()
	busCancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("gateway stopped gracefully")
}

// subscribeEvents wires the in-process bus to the push hub, the badge
// registry and the broker.
func subscribeEvents(events *bus.Bus, manager *session.Manager, badges *badge.Registry, hub *ws.Hub, publisher *messaging.Publisher) {
	events.Subscribe(bus.EventBadgeRefresh, func(e bus.Event) {
		store, ok := manager.Peek(e.ContextID)
		if !ok {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			badges.For(store).Refresh(upstream.WithSession(ctx, store))
		}()
	})

	events.Subscribe(bus.EventSessionChanged, func(e bus.Event) {
		store, ok := manager.Peek(e.ContextID)
		if !ok {
			return
		}
		current := store.Snapshot()
		authenticated := !current.Anonymous()
		hub.Push(e.ContextID, ws.ServerEvent{
			Type:          "session_changed",
			Authenticated: &authenticated,
			Role:          string(current.Role),
		})
		events.Publish(bus.Event{Type: bus.EventBadgeRefresh, ContextID: e.ContextID})
	})

	events.Subscribe(bus.EventAuthPrompt, func(e bus.Event) {
		authenticated := false
		hub.Push(e.ContextID, ws.ServerEvent{
			Type:          "auth_prompt",
			Authenticated: &authenticated,
			Message:       "Your session has expired. Please log in again.",
		})

		if publisher != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := publisher.SessionRevoked(ctx, e.ContextID); err != nil {
					slog.Warn("failed to publish session revocation",
						slog.String("context_id", e.ContextID),
						slog.String("error", err.Error()))
				}
			}()
		}
	})
}

// orderPublisher adapts the optional broker connection to the cart
// handler's interface without handing it a typed nil.
func orderPublisher(p *messaging.Publisher) handler.OrderPublisher {
	if p == nil {
		return nil
	}
	return p
}
