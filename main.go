package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"google.golang.org/grpc/health"

	"inbox-service/internal/auth"
	"inbox-service/internal/config"
	"inbox-service/internal/db"
	grpcserver "inbox-service/internal/grpc"
	"inbox-service/internal/handlers"
	"inbox-service/internal/middleware"
	"inbox-service/internal/observability"
	"inbox-service/internal/rabbitmq"
	"inbox-service/internal/repositories"
	"inbox-service/internal/services"
	"inbox-service/internal/telemetry"
	"inbox-service/internal/ws"
)

func main() {
	seed := flag.Bool("seed", false, "insert the demo users before serving")
	tokenFor := flag.Int64("token-for", 0, "print a development session token for the given user id and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	if err := run(cfg, logger, *seed, *tokenFor); err != nil {
		logger.Error("inbox service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, seed bool, tokenFor int64) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DBDriver, cfg.DBDSN, db.Options{MaxOpenConns: cfg.DBMaxOpenConns, Log: logger})
	if err != nil {
		return err
	}
	defer database.Close()

	if seed {
		ids, err := db.SeedDemo(ctx, database)
		if err != nil {
			return fmt.Errorf("seed demo users: %w", err)
		}
		logger.Info("demo users ready", "users", ids)
	}

	profileRepo := repositories.NewProfileRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	if tokenFor != 0 {
		return printToken(ctx, cfg, profileRepo, tokenFor)
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	logger.Info("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment, logger)
	wsEvents := observability.NewWSEventEmitter(publisher, logger)

	var (
		relay    *ws.RedisRelay
		hubRelay ws.Relay
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		relay = ws.NewRedisRelay(rdb, logger)
		hubRelay = relay
	}
	hub := ws.NewHub(ws.NewRegistry(), hubRelay, logger)

	authenticator := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, profileRepo)
	inbox := services.NewInboxService(messageRepo, profileRepo, services.DefaultRecentActivityLimits, logger)
	messageHandler := handlers.NewMessageHandler(messageRepo, profileRepo, inbox, hub, audit, logger)
	adminHandler := handlers.NewAdminHandler(messageRepo, logger)

	clientOpts := ws.DefaultClientOptions()
	clientOpts.SendBuffer = cfg.WSSendBuffer
	clientOpts.MaxMessageBytes = cfg.WSMaxMessageBytes
	origins := auth.NewOriginPolicy(cfg.Origins())
	inboxWS := ws.NewInboxWebSocketHandler(hub, authenticator, origins, wsEvents, logger, clientOpts)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		otelgin.Middleware(cfg.ServiceName),
		observability.HTTPMetricsMiddleware(),
		middleware.RequestLogger(logger),
		middleware.BodyLimit(cfg.MaxBodyBytes),
	)

	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	router.GET("/healthz", handlers.Health(database))
	router.GET("/ws/inbox/", inboxWS.Handle)

	authMiddleware := middleware.AuthMiddleware(authenticator, origins, logger)

	messages := router.Group("/messages", authMiddleware)
	messages.POST("/send", messageHandler.SendMessage)
	messages.GET("/unread", messageHandler.UnreadSummary)
	messages.GET("/conversations", messageHandler.Conversations)
	messages.GET("/thread/:user_id", messageHandler.Thread)
	messages.POST("/thread/:user_id/read", messageHandler.MarkThreadRead)
	messages.GET("/:message_id", messageHandler.ViewMessage)

	admin := router.Group("/admin", authMiddleware, middleware.RequireAdmin())
	admin.GET("/messages", adminHandler.ListMessages)

	handlers.RegisterDebugRoutes(router, audit, hub.Registry(), cfg.DebugRoutes)

	errCh := make(chan error, 3)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	healthServer := health.NewServer()
	grpcServer := grpcserver.NewServer(healthServer)
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go func() {
		logger.Info("grpc server listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(listener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go grpcserver.WatchDatabase(ctx, healthServer, database, 15*time.Second, logger)

	if relay != nil {
		go func() {
			if err := relay.Run(ctx, hub); err != nil {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	return runErr
}

func printToken(ctx context.Context, cfg *config.Config, profiles repositories.ProfileRepository, userID int64) error {
	profile, err := profiles.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	token, err := auth.GenerateToken(cfg.JWTSecret, cfg.JWTIssuer, profile, 24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
