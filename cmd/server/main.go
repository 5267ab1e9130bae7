package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/eupaygrid/backend/internal/database"
	mW "github.com/eupaygrid/backend/internal/middleware"
	"github.com/eupaygrid/backend/internal/services"
	"github.com/eupaygrid/backend/internal/websocket"
)

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("app.allowed_currencies", "APP_ALLOWED_CURRENCIES")
	viper.BindEnv("app.settlement_layer", "APP_SETTLEMENT_LAYER")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize infrastructure
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	hub := websocket.NewHub()
	go hub.Run()

	// Initialize services
	publisher := services.NewOutboxService(db, redisClient, hub)
	institutionService := services.NewInstitutionService(db, publisher)
	transferService := services.NewTransferService(db, publisher)
	reserveService := services.NewReserveService(db, publisher)
	ledgerService := services.NewLedgerService(db)
	overviewService := services.NewOverviewService(db)
	adminService := services.NewAdminService(db)
	demoService := services.NewDemoService(institutionService, reserveService, transferService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(mW.ActorMiddleware)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Live event stream
	r.Get("/ws/events", hub.ServeWS)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/institutions", institutionService.HandleCreate)
		r.Get("/institutions", institutionService.HandleList)
		r.Patch("/institutions/{institutionId}/approve", institutionService.HandleApprove)
		r.Patch("/institutions/{institutionId}/suspend", institutionService.HandleSuspend)
		r.Patch("/institutions/{institutionId}/freeze", institutionService.HandleFreeze)
		r.Patch("/institutions/{institutionId}/unfreeze", institutionService.HandleUnfreeze)
		r.Get("/institutions/{institutionId}/activity", transferService.HandleInstitutionActivity)

		r.Post("/transfers", transferService.HandleCreate)
		r.Get("/transfers", transferService.HandleList)
		r.Get("/network/activity", transferService.HandleNetworkActivity)

		r.Post("/reserve/deposits", reserveService.HandleDeposit)

		r.Get("/ledger/entries", ledgerService.HandleListEntries)
		r.Get("/balances", ledgerService.HandleListBalances)
		r.Post("/ledger/replay", ledgerService.HandleReplay)

		r.Get("/overview/metrics", overviewService.HandleMetrics)
		r.Get("/overview/volume-series", overviewService.HandleVolumeSeries)
		r.Get("/overview/top-institutions", overviewService.HandleTopInstitutions)

		r.Get("/events", publisher.HandleLatestEvents)
		r.Post("/events/{eventId}/published", publisher.HandleMarkPublished)

		r.Get("/admin/audit-log", adminService.HandleAuditLog)
		r.Post("/demo/seed", demoService.HandleSeed)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
