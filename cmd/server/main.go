package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"onetrivia/game-service/internal/config"
	"onetrivia/game-service/internal/handler"
	"onetrivia/game-service/internal/repository"
	"onetrivia/game-service/internal/service"
	"onetrivia/game-service/pkg/db"
	"onetrivia/game-service/pkg/helpers"
	"onetrivia/game-service/pkg/logger"
	"onetrivia/game-service/pkg/metrics"
)

func main() {
	// Load environment variables before the logger reads LOG_LEVEL
	envErr := godotenv.Load()

	log := logger.NewLogger("game-service")
	log.Info("Starting Game Service...")
	if envErr != nil {
		log.WithError(envErr).Warn(".env file not found, using environment variables")
	}

	cfg := config.LoadConfig()

	// Database connection
	conn, err := db.NewConnection(context.Background(), db.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer conn.Close()
	log.Info("Database connected")

	database := conn.DB

	// Initialize repositories
	walletRepo := repository.NewWalletRepository(database)
	transactionRepo := repository.NewTransactionRepository(database)
	userRepo := repository.NewUserRepository(database)
	periodRepo := repository.NewPeriodRepository(database)
	modeRepo := repository.NewGameModeRepository(database)
	sessionRepo := repository.NewSessionRepository(database)
	sessionQuestionRepo := repository.NewSessionQuestionRepository(database)
	questionRepo := repository.NewQuestionRepository(database)
	answerRepo := repository.NewAnswerRepository(database)
	leaderboardRepo := repository.NewLeaderboardRepository(database)
	winnerRepo := repository.NewWinnerRepository(database)

	// Initialize shared helpers
	idGen := helpers.NewIDGenerator()
	validator := helpers.NewCustomValidator()
	serviceMetrics := metrics.NewMetrics("game")
	auditSink := service.NewLogAuditSink(log)

	// Initialize services
	walletService := service.NewWalletService(
		walletRepo,
		transactionRepo,
		idGen,
		validator,
		cfg.Wallet,
		serviceMetrics,
		auditSink,
		log,
	)
	leaderboardService := service.NewLeaderboardService(leaderboardRepo, log)
	fraudService := service.NewFraudService(
		sessionRepo,
		answerRepo,
		leaderboardRepo,
		cfg.Fraud,
		log,
	)
	paymentVerifier := service.NewTransactionPaymentVerifier(transactionRepo)
	sessionService := service.NewSessionService(
		sessionRepo,
		sessionQuestionRepo,
		periodRepo,
		modeRepo,
		walletService,
		paymentVerifier,
		questionRepo,
		idGen,
		validator,
		cfg.Game,
		log,
		serviceMetrics,
		auditSink,
	)
	scoringService := service.NewScoringService(
		sessionRepo,
		sessionQuestionRepo,
		questionRepo,
		answerRepo,
		periodRepo,
		leaderboardService,
		sessionService,
		validator,
		cfg.Game,
		log,
		serviceMetrics,
		auditSink,
	)
	winnerService := service.NewWinnerService(
		periodRepo,
		modeRepo,
		leaderboardRepo,
		winnerRepo,
		userRepo,
		leaderboardService,
		fraudService,
		cfg.Gating,
		log,
		serviceMetrics,
		auditSink,
	)
	// Initialize HTTP handlers
	walletHandler := handler.NewWalletHandler(walletService)
	sessionHandler := handler.NewSessionHandler(sessionService, scoringService)
	leaderboardHandler := handler.NewLeaderboardHandler(leaderboardService)
	winnerHandler := handler.NewWinnerHandler(winnerService)

	apiMux := http.NewServeMux()
	walletHandler.RegisterRoutes(apiMux)
	sessionHandler.RegisterRoutes(apiMux)
	leaderboardHandler.RegisterRoutes(apiMux)
	winnerHandler.RegisterRoutes(apiMux)

	apiServer := &http.Server{
		Addr:    ":" + cfg.Server.HTTPPort,
		Handler: apiMux,
	}
	go func() {
		log.WithField("port", cfg.Server.HTTPPort).Info("HTTP API listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP API server stopped")
		}
	}()

	// Finalize periods past their end time
	finalizerCtx, finalizerCancel := context.WithCancel(context.Background())
	defer finalizerCancel()
	finalizer := service.NewPeriodFinalizer(periodRepo, winnerService, cfg.Game.PeriodSweepInterval, log)
	go finalizer.Run(finalizerCtx)

	// Create gRPC server with interceptors
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logger.UnaryServerInterceptor(log),
			metrics.UnaryServerInterceptor(serviceMetrics),
		),
		grpc.ChainStreamInterceptor(
			logger.StreamServerInterceptor(log),
			metrics.StreamServerInterceptor(serviceMetrics),
		),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("game-service", healthpb.HealthCheckResponse_SERVING)

	// Enable reflection for debugging
	reflection.Register(grpcServer)

	// Metrics endpoint
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    ":" + cfg.Server.MetricsPort,
		Handler: metricsMux,
	}
	go func() {
		log.WithField("port", cfg.Server.MetricsPort).Info("Metrics endpoint listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()

	// Report connection pool stats periodically
	poolCtx, poolCancel := context.WithCancel(context.Background())
	defer poolCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-poolCtx.Done():
				return
			case <-ticker.C:
				stats := database.Stats()
				serviceMetrics.RecordDBPoolStats(
					stats.OpenConnections,
					stats.InUse,
					stats.Idle,
					stats.WaitCount,
					stats.WaitDuration,
				)
			}
		}
	}()

	// Start gRPC server
	listener, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		log.WithError(err).WithField("port", cfg.Server.GRPCPort).Fatal("Failed to listen")
	}

	log.WithField("port", cfg.Server.GRPCPort).Info("Game Service started")

	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			log.WithError(err).Fatal("Failed to serve")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	healthServer.SetServingStatus("game-service", healthpb.HealthCheckResponse_NOT_SERVING)
	finalizerCancel()
	grpcServer.GracefulStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP API server shutdown failed")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Metrics server shutdown failed")
	}

	log.Info("Server stopped")
}
