package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"staybook/config"
	"staybook/cron"
	"staybook/database"
	catalogRepo "staybook/database/repository/catalog"
	reservationRepo "staybook/database/repository/reservation"
	"staybook/handlers"
	"staybook/middleware"
	"staybook/routes"
	"staybook/services/booking"
	"staybook/services/events"
	"staybook/services/payment"
	"staybook/services/tasks"
	"staybook/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	defer logger.Sync()
	cfg := config.AppConfig

	if err := utils.InitCache(); err != nil {
		logger.Warn("main: running without cache", zap.Error(err))
	}

	// repositories.
	var (
		repo    reservationRepo.ReservationRepository
		catalog catalogRepo.ServiceCatalog
	)
	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("main: using in-memory storage, data will not survive a restart")
		repo = reservationRepo.NewMemoryReservationRepo()
		catalog = catalogRepo.NewMemoryServiceCatalog()
	default:
		db, err := database.InitDB()
		if err != nil {
			logger.Fatal("main: database unavailable", zap.Error(err))
		}
		mongoRepo := reservationRepo.NewMongoReservationRepo(db)
		mongoCatalog := catalogRepo.NewMongoServiceCatalog(db)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := mongoRepo.EnsureIndexes(ctx); err != nil {
			logger.Fatal("main: failed to create reservation indexes", zap.Error(err))
		}
		if err := mongoCatalog.EnsureIndexes(ctx); err != nil {
			logger.Fatal("main: failed to create catalog indexes", zap.Error(err))
		}
		cancel()

		repo = mongoRepo
		catalog = mongoCatalog
		if utils.GetCacheClient() != nil {
			catalog = &catalogRepo.CachedServiceCatalog{
				Next:   mongoCatalog,
				Client: utils.GetCacheClient(),
				TTL:    10 * time.Minute,
				Logger: logger,
			}
		}
	}

	// payments.
	gateway := payment.NewStripeGateway(cfg.StripeKey, cfg.GatewayTimeout, "", logger)
	payments := booking.NewPaymentOrchestrator(gateway, cfg.GatewayTimeout, cfg.GatewayMaxAttempts, logger)

	// background work.
	queueClient := asynq.NewClient(cron.RedisOpt())
	defer queueClient.Close()
	scheduler := tasks.NewScheduler(queueClient, 30*time.Second, logger)

	var publisher booking.EventPublisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		publisher = events.NewRabbitPublisher(cfg.AMQPURL, events.DefaultQueue, logger)
	}

	reservationService := &booking.DefaultReservationService{
		Repo:     repo,
		Payments: payments,
		Catalog:  catalog,
		Tasks:    scheduler,
		Events:   publisher,
		Cache:    utils.GetCacheClient(),
		Logger:   logger,
		ClaimTTL: cfg.ClaimTTL,
		StatsTTL: cfg.StatsCacheTTL,
		Currency: cfg.DefaultCurrency,
	}

	stopWorker := cron.InitReservationWorker(reservationService)
	defer stopWorker()

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	var redisClients []*redis.Client
	if c := utils.GetCacheClient(); c != nil {
		redisClients = append(redisClients, c)
	}
	utils.StartHealthMonitor(monitorCtx, redisClients, database.MongoClient)

	// Create the Gin router.
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.RateLimitMiddleware(cfg.MaxRequestsPerMin))

	handlerBundle := &handlers.HandlerBundle{
		Reservations: handlers.NewReservationHandler(reservationService, catalog),
	}
	routes.RegisterRoutes(router, handlerBundle)

	// Start the HTTP server.
	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	database.CloseDB(ctx)

	logger.Sugar().Info("main: server stopped gracefully")
}
