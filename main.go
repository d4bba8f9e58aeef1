package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"interviewsense/internal/analysis"
	"interviewsense/internal/config"
	"interviewsense/internal/database/db_client"
	"interviewsense/internal/database/db_schema"
	"interviewsense/internal/http/http_server"
	"interviewsense/internal/logging"
	"interviewsense/internal/redis/redis_client"
	"interviewsense/internal/services/insight"
	"interviewsense/internal/services/meeting"
	"interviewsense/internal/syncinsight"
	"interviewsense/internal/ws"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	zap.ReplaceGlobals(Log)

	var err error
	var cfg *config.Config
	var redisClient *redis.Client
	var meetingService meeting.IMeetingService

	// 1. Load configuration
	cfg, err = config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}

	Log, err = logging.New(logging.Options{Mode: cfg.LogMode, Level: cfg.LogLevel, Filename: cfg.LogFile})
	if err != nil {
		zap.L().Fatal("Failed to build logger", zap.Error(err))
	}
	defer Log.Sync()
	zap.ReplaceGlobals(Log)
	Log.Debug("Configuration loaded successfully",
		zap.String("redis", cfg.RedisHost),
		zap.String("postgres", cfg.PostgresHost),
		zap.Bool("analyzer", cfg.AnalyzerEnabled()),
		zap.Bool("auth_disabled", cfg.AuthDisabled),
	)

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis
	redisClient, err = redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort), cfg.RedisPassword)
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()
	Log.Debug("Redis client created successfully")

	// 4. Postgres db client + schema
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	if err := db_schema.Apply(ctx, pgDb); err != nil {
		Log.Fatal("pg-schema", zap.Error(err))
	}

	// 5. Services
	meetingService = meeting.NewMeetingService(redisClient, pgDb)
	insightStore := insight.NewStore(redisClient)

	// 6. Background: insight stream -> Postgres
	syncinsight.Run(ctx, redisClient, pgDb)

	// 7. Rooms, hub and analysis pipeline
	registry := ws.NewRegistry()
	hub := ws.NewHub(registry, ws.NewSnapshotStore(cfg.SnapshotTTL), insightStore, cfg.PersistTimeout)

	pipeOpts := analysis.Options{
		Clock:     meetingService,
		Publisher: hub,
		Timeout:   cfg.AnalyzerTimeout,
		Active:    registry.HasProducer,
	}
	if cfg.AnalyzerEnabled() {
		pipeOpts.Analyzer = analysis.NewOpenAIAnalyzer(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.AnalyzerModel)
	} else {
		Log.Warn("OPENAI_API_KEY not set, snapshots are synthetic")
	}
	pipeline := analysis.NewPipeline(pipeOpts)

	// 8. Initialize the WS server
	var auth ws.Authorizer = meetingService
	if cfg.AuthDisabled {
		Log.Warn("websocket authorization disabled")
		auth = ws.AllowAll{}
	}
	wsSrv := ws.NewWsServer(ws.Options{
		Registry:    registry,
		Hub:         hub,
		Relay:       ws.NewRelay(registry),
		Pipeline:    pipeline,
		Auth:        auth,
		MaxInflight: cfg.AnalyzerMaxInflight,
		Model:       cfg.AnalyzerModel,
	})

	// 9. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, meetingService, !cfg.AuthDisabled)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
	Log.Info("shutdown complete")
}
