package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	commonmw "codearena/internal/common/http/middleware"
	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	"codearena/internal/judge/build"
	"codearena/internal/judge/controller"
	"codearena/internal/judge/pipeline"
	"codearena/internal/judge/repository"
	"codearena/internal/judge/sandbox"
	"codearena/internal/judge/sandbox/engine"
	"codearena/internal/judge/sandbox/observer"
	"codearena/internal/judge/sandbox/profile"
	"codearena/internal/judge/sandbox/workspace"
	"codearena/internal/judge/service"
	"codearena/internal/ranking"
	"codearena/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	database, err := db.Open(&appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = database.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis failed: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		return fmt.Errorf("init minio failed: %w", err)
	}

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
	if err != nil {
		return fmt.Errorf("init kafka failed: %w", err)
	}
	defer func() {
		_ = mqClient.Close()
	}()

	registry, err := profile.NewRegistry(appCfg.Sandbox.Languages, appCfg.Sandbox.Profiles, appCfg.Sandbox.RootFS, appCfg.Sandbox.SeccompProfile)
	if err != nil {
		return fmt.Errorf("init language registry failed: %w", err)
	}
	eng, err := engine.NewEngine(appCfg.Sandbox.Engine, registry)
	if err != nil {
		return fmt.Errorf("init sandbox engine failed: %w", err)
	}
	workspaces, err := workspace.NewManager(appCfg.Sandbox.WorkRoot)
	if err != nil {
		return fmt.Errorf("init workspace root failed: %w", err)
	}
	metrics := observer.LogRecorder{}

	objects := repository.NewObjectStore(objStorage, appCfg.Storage.SourceBucket, appCfg.Storage.DiagnosticsPrefix)
	dataPacks := repository.NewDataPackLoader(objStorage, appCfg.Storage.DataPackBucket, appCfg.Storage.MaxDataPackBytes)
	problems := repository.NewCachedProblemRepository(repository.NewProblemRepository(database, dataPacks), appCfg.Problems)
	submissions := repository.NewSubmissionRepository(database)
	statusRepo := repository.NewStatusRepository(redisCache, appCfg.Status.TTL)

	judgePipeline, err := pipeline.New(pipeline.Deps{
		Problems:    problems,
		Submissions: submissions,
		Sources:     objects,
		Builder: build.NewBuilder(eng, registry, workspaces,
			build.WithMetrics(metrics),
			build.WithRetry(appCfg.Sandbox.Retry),
			build.WithDiagnosticsSink(objects),
		),
		Executor:  sandbox.NewExecutor(eng, workspaces, metrics, appCfg.Sandbox.Retry),
		Languages: registry,
		Reporter:  statusRepo,
		Publisher: repository.NewMQVerdictPublisher(mqClient, appCfg.Kafka.StatusTopic),
	}, appCfg.Pipeline)
	if err != nil {
		return fmt.Errorf("init pipeline failed: %w", err)
	}

	pool := service.NewPool(judgePipeline, appCfg.Worker.PoolSize, appCfg.Worker.QueueSize)
	pool.Start()
	defer pool.Stop()

	judgeSvc, err := service.NewService(service.Config{
		Pool:         pool,
		Finalizer:    judgePipeline,
		Status:       statusRepo,
		Queue:        mqClient,
		Requeue:      appCfg.Requeue,
		JudgeTimeout: appCfg.Worker.Timeout,
	})
	if err != nil {
		return fmt.Errorf("init judge service failed: %w", err)
	}

	rankingSvc := ranking.NewService(problems, submissions, redisCache, ranking.Policy{
		Penalty:            ranking.ICPCPenalty(appCfg.Ranking.PenaltyPerWrong),
		CountCompileErrors: appCfg.Ranking.CountCompileErrors,
	}, appCfg.Ranking.Cache)

	judgeOpts := appCfg.Kafka.subscribeOptions(appCfg.Kafka.ConsumerGroup)
	judgeOpts.DeadLetterTopic = appCfg.Requeue.DeadLetterTopic
	limiter := mq.NewTokenLimiter(appCfg.Worker.PoolSize)
	if err := mqClient.SubscribeWeighted(ctx, appCfg.Kafka.weightedTopics(), judgeSvc.HandleMessage, judgeOpts, limiter); err != nil {
		return fmt.Errorf("subscribe judge topics failed: %w", err)
	}
	if appCfg.Requeue.Topic != "" {
		if err := mqClient.SubscribeWithOptions(ctx, appCfg.Requeue.Topic, judgeSvc.HandleMessage, judgeOpts); err != nil {
			return fmt.Errorf("subscribe retry topic failed: %w", err)
		}
	}
	if err := mqClient.SubscribeWithOptions(ctx, appCfg.Kafka.StatusTopic, rankingSvc.HandleVerdictEvent, appCfg.Kafka.subscribeOptions(appCfg.Kafka.RankingGroup)); err != nil {
		return fmt.Errorf("subscribe verdict events failed: %w", err)
	}
	if err := mqClient.Start(); err != nil {
		return fmt.Errorf("start kafka consumer failed: %w", err)
	}

	httpServer := buildHTTPServer(appCfg.Server, judgeSvc, problems, rankingSvc)
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	httpListener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}
	grpcListener, err := net.Listen("tcp", appCfg.GRPC.Addr)
	if err != nil {
		_ = httpListener.Close()
		return fmt.Errorf("init grpc listener failed: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info(ctx, "judge http server started", zap.String("addr", appCfg.Server.Addr), zap.Int("workers", pool.Size()))
		errCh <- httpServer.Serve(httpListener)
	}()
	go func() {
		logger.Info(ctx, "judge health server started", zap.String("addr", appCfg.GRPC.Addr))
		errCh <- grpcServer.Serve(grpcListener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	// stop intake first so in-flight submissions can finish
	if err := mqClient.Stop(); err != nil {
		logger.Warn(ctx, "stop kafka consumer failed", zap.Error(err))
	}
	drainCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	return nil
}

func buildHTTPServer(cfg ServerConfig, judgeSvc controller.JudgeService, problems repository.ProblemRepository, ranker controller.Ranker) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	controller.RegisterRoutes(router,
		controller.NewJudgeController(judgeSvc, cfg.WatchInterval),
		controller.NewContestController(problems, ranker, nil),
	)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
