package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bitfantasy/nimo-qualify/internal/config"
	"github.com/bitfantasy/nimo-qualify/internal/middleware"
	"github.com/bitfantasy/nimo-qualify/internal/shared/feishu"
	"github.com/bitfantasy/nimo-qualify/internal/srm/entity"
	"github.com/bitfantasy/nimo-qualify/internal/srm/handler"
	"github.com/bitfantasy/nimo-qualify/internal/srm/repository"
	"github.com/bitfantasy/nimo-qualify/internal/srm/scoring"
	"github.com/bitfantasy/nimo-qualify/internal/srm/service"
	"github.com/bitfantasy/nimo-qualify/internal/srm/sse"
	"github.com/bitfantasy/nimo-qualify/internal/srm/workflow"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting nimo-qualify service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 评估目录：配置错误直接退出，不带病启动
	catalogs, err := scoring.LoadRegistry(cfg.Qualification.CatalogPath, cfg.Qualification.DefaultCatalog)
	if err != nil {
		zapLogger.Fatal("Failed to load evaluation catalogs", zap.Error(err))
	}
	for _, c := range catalogs.List() {
		zapLogger.Info("Catalog loaded",
			zap.String("id", c.ID),
			zap.String("version", c.Version),
			zap.Int("categories", len(c.Categories)),
		)
	}

	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := entity.AutoMigrate(db); err != nil {
		zapLogger.Fatal("AutoMigrate failed", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	hub := sse.NewHub(zapLogger)
	publisher := service.NewPublisher(zapLogger)
	repos := repository.NewRepositories(db)

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = initRedis(cfg.Redis)
		if err := rdb.Ping(ctx).Err(); err != nil {
			zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()

		// 多副本：事件经 redis 广播，每个副本转发给自己的 SSE 连接
		redisSink := service.NewRedisEventSink(rdb, cfg.Redis.Channel)
		if err := redisSink.StartForwarder(ctx, hub, zapLogger); err != nil {
			zapLogger.Fatal("Failed to subscribe event channel", zap.Error(err))
		}
		publisher.Add(redisSink)
	} else {
		publisher.Add(service.NewSSEEventSink(hub))
	}

	if cfg.Feishu.Enabled() {
		client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)
		publisher.Add(service.NewFeishuEventSink(client, cfg.Feishu.ChatID, cfg.Feishu.LinkBase, repos.Supplier))
		zapLogger.Info("Feishu notifications enabled", zap.String("chat_id", cfg.Feishu.ChatID))
	}

	machine := workflow.NewMachine(time.Now)
	evalSvc := service.NewEvaluationService(repos, catalogs, machine, publisher, zapLogger)
	evalSvc.SetEvaluationWindow(cfg.Qualification.EvaluationWindow)

	if cfg.MinIO.Enabled {
		archiver, err := initArchiver(ctx, cfg.MinIO)
		if err != nil {
			zapLogger.Fatal("Failed to init minio archive", zap.Error(err))
		}
		evalSvc.SetArchiver(archiver)
	}

	if cfg.Qualification.Overdue.Enabled {
		var lock service.SweepLock
		if rdb != nil {
			lock = service.NewRedisSweepLock(rdb, "")
		}
		monitor := service.NewOverdueMonitor(repos, machine, publisher, lock, zapLogger)
		monitor.SetInterval(cfg.Qualification.Overdue.Interval)
		monitor.SetLockTTL(cfg.Qualification.Overdue.LockTTL)
		go monitor.Run(ctx)
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	// SSE 不压缩
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/srm/events"})))

	registerRoutes(router, db, rdb)
	handler.RegisterRoutes(router, handler.NewHandlers(evalSvc, service.NewSupplierService(repos.Supplier), catalogs, hub, zapLogger), cfg.JWT.Secret)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // SSE 长连接
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	case "postgres", "":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite 单写者
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func initArchiver(ctx context.Context, cfg config.MinIOConfig) (*service.MinIOArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := service.EnsureBucket(initCtx, client, cfg.Bucket); err != nil {
		return nil, err
	}
	return service.NewMinIOArchiver(client, cfg.Bucket), nil
}

func registerRoutes(r *gin.Engine, db *gorm.DB, rdb *redis.Client) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err == nil && rdb != nil {
			err = rdb.Ping(ctx).Err()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})
}
