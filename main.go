package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mehtapradnyatama/appsampah/internal/auth"
	"github.com/mehtapradnyatama/appsampah/internal/classifier"
	"github.com/mehtapradnyatama/appsampah/internal/config"
	"github.com/mehtapradnyatama/appsampah/internal/handlers"
	"github.com/mehtapradnyatama/appsampah/internal/health"
	"github.com/mehtapradnyatama/appsampah/internal/logging"
	"github.com/mehtapradnyatama/appsampah/internal/repository"
	"github.com/mehtapradnyatama/appsampah/internal/uploads"
	"github.com/mehtapradnyatama/appsampah/internal/usecase"
)

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", "config.yaml"), "path to the YAML configuration file")
	healthcheck := flag.Bool("healthcheck", false, "probe the gRPC health endpoint and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if *healthcheck {
		os.Exit(runHealthcheck(cfg, logger))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	clf := classifier.Load(classifier.LoadOptions{
		ConfigPath:     cfg.Model.ConfigPath,
		ModelPaths:     cfg.Model.Paths,
		OnnxRuntimeLib: cfg.Model.OnnxRuntimeLibrary,
	}, logger)
	defer closeWithLog(logger, "classifier", clf.Close)
	if !clf.Available() {
		logger.Warn("model could not be loaded, classification requests will fail",
			zap.Strings("model_paths", cfg.Model.Paths))
	}

	uploadStore, err := uploads.NewStore(cfg.Server.UploadDir)
	if err != nil {
		logger.Fatal("failed to prepare upload directory", zap.Error(err))
	}

	store, err := repository.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err), zap.String("backend", cfg.Store.Backend))
	}
	defer closeWithLog(logger, "store", store.Close)
	if err := store.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	var cache usecase.Cache = usecase.NopCache{}
	if cfg.Redis.Addr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient := initRedis(redisCtx, cfg.Redis, logger)
		redisCancel()
		defer closeWithLog(logger, "redis", redisClient.Close)
		cache = usecase.NewRedisCache(redisClient)
	}

	r := buildRouter(cfg, clf, uploadStore, store, cache, logger)

	if cfg.Server.GRPCHealthAddr != "" {
		healthServer, err := startHealthServer(cfg.Server.GRPCHealthAddr, clf.Available(), logger)
		if err != nil {
			logger.Fatal("failed to start gRPC health server", zap.Error(err))
		}
		defer healthServer.Stop()
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("AppSampah listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("store", cfg.Store.Backend),
		zap.Bool("model_loaded", clf.Available()))
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
	}
}

func buildRouter(cfg *config.Config, clf *classifier.Classifier, uploadStore *uploads.Store, store repository.Store, cache usecase.Cache, logger *zap.Logger) *gin.Engine {
	users := usecase.NewUserUseCase(store, logger)
	classifications := usecase.NewClassificationUseCase(store, clf, uploadStore, cache, cfg.Redis.StatsTTL, logger)
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience, cfg.Auth.SessionTTL)

	gin.SetMode(cfg.Server.GinMode)
	r := gin.New()
	handlers.RegisterRoutes(r, handlers.New(users, classifications, tokens, handlers.Options{
		UploadDir:      uploadStore.Dir(),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		SecureCookie:   cfg.Auth.SecureCookie,
		Labels:         clf.Labels(),
	}, logger))
	return r
}

func initRedis(ctx context.Context, cfg config.Redis, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Warn("redis unreachable, stats will be read from the store", zap.Error(err), zap.String("addr", cfg.Addr))
	}
	return client
}

func startHealthServer(addr string, modelLoaded bool, logger *zap.Logger) (*health.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := health.NewServer(modelLoaded, logger)
	go func() {
		if err := srv.Serve(lis); err != nil {
			logger.Error("gRPC health server stopped", zap.Error(err))
		}
	}()
	return srv, nil
}

func runHealthcheck(cfg *config.Config, logger *zap.Logger) int {
	addr := cfg.Server.GRPCHealthAddr
	if addr == "" {
		logger.Error("healthcheck needs server.grpc_health_addr")
		return 1
	}
	if host, port, err := net.SplitHostPort(addr); err == nil && host == "" {
		addr = net.JoinHostPort("127.0.0.1", port)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := health.Probe(ctx, addr, health.ClassifierService, logger)
	if err != nil {
		return 1
	}
	logger.Info("health", zap.String("service", health.ClassifierService), zap.String("status", status.String()))
	if status != healthpb.HealthCheckResponse_SERVING {
		return 1
	}
	return 0
}

func closeWithLog(logger *zap.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Warn("close failed", zap.String("component", name), zap.Error(err))
	}
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
