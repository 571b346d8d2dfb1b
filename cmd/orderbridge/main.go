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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/wyfcoding/orderbridge/internal/order/application"
	"github.com/wyfcoding/orderbridge/internal/order/domain"
	"github.com/wyfcoding/orderbridge/internal/order/infrastructure/broker/breaker"
	"github.com/wyfcoding/orderbridge/internal/order/infrastructure/broker/upstox"
	"github.com/wyfcoding/orderbridge/internal/order/infrastructure/messaging"
	"github.com/wyfcoding/orderbridge/internal/order/infrastructure/persistence/memory"
	grpcserver "github.com/wyfcoding/orderbridge/internal/order/interfaces/grpc"
	httpserver "github.com/wyfcoding/orderbridge/internal/order/interfaces/http"
	refapp "github.com/wyfcoding/orderbridge/internal/referencedata/application"
	refdomain "github.com/wyfcoding/orderbridge/internal/referencedata/domain"
	"github.com/wyfcoding/orderbridge/internal/referencedata/infrastructure/persistence/file"
	refmysql "github.com/wyfcoding/orderbridge/internal/referencedata/infrastructure/persistence/mysql"
	refhttp "github.com/wyfcoding/orderbridge/internal/referencedata/interfaces/http"
	riskapp "github.com/wyfcoding/orderbridge/internal/risk/application"
	"github.com/wyfcoding/orderbridge/internal/risk/infrastructure/lock"
	"github.com/wyfcoding/orderbridge/pkg/cache"
	"github.com/wyfcoding/orderbridge/pkg/config"
	"github.com/wyfcoding/orderbridge/pkg/db"
	"github.com/wyfcoding/orderbridge/pkg/logger"
	"github.com/wyfcoding/orderbridge/pkg/metrics"
	"github.com/wyfcoding/orderbridge/pkg/middleware"
	"github.com/wyfcoding/orderbridge/pkg/mq"
	"github.com/wyfcoding/orderbridge/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

var configPath = flag.String("config", "configs/orderbridge/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. 初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	slog.Info("starting service", "service", cfg.ServiceName, "version", cfg.Version, "environment", cfg.Environment)

	// 3. 初始化指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsImpl := metrics.New(cfg.ServiceName)
	if err := metricsImpl.Register(registry); err != nil {
		slog.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	// 4. 加载合约映射，失败时以空表继续运行
	instruments := refapp.NewRegistry()
	source, closeSource, err := newInstrumentSource(cfg)
	if err != nil {
		slog.Error("failed to init instrument source", "source", cfg.Instruments.Source, "error", err)
	} else {
		if _, err := instruments.Load(context.Background(), source); err != nil {
			slog.Error("instrument mappings unavailable, symbol resolution disabled", "error", err)
		}
		closeSource()
	}

	// 5. 初始化基础设施
	var publisher domain.EventPublisher = messaging.NoopEventPublisher{}
	if cfg.Kafka.Enabled {
		producer := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		defer producer.Close()
		publisher = messaging.NewKafkaEventPublisher(producer, cfg.Kafka.Topic, cfg.ServiceName)
	}

	var monitorOpts []riskapp.MonitorOption
	monitorOpts = append(monitorOpts, riskapp.WithMonitorMetrics(metricsImpl))
	var submitLimiter ratelimit.RateLimiter = ratelimit.NewLocalRateLimiter(ratelimit.DefaultIdleTTL)
	if cfg.Redis.Enabled {
		redisCache, err := cache.New(cache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxPoolSize:  cfg.Redis.MaxPoolSize,
			ConnTimeout:  cfg.Redis.ConnTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			slog.Error("failed to init redis", "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		submitLimiter = ratelimit.NewRedisRateLimiter(redisCache)
		if cfg.Monitor.LockEnabled {
			monitorOpts = append(monitorOpts, riskapp.WithPassLock(
				lock.NewRedisPassLock(redisCache, cfg.Monitor.LockKey, cfg.Monitor.Instance(), cfg.Monitor.LockTTL()),
			))
		}
	}

	store := memory.NewOrderStore()
	var gateway domain.BrokerGateway = upstox.NewGateway(upstox.Config{
		BaseURL:          cfg.Broker.BaseURL,
		Timeout:          cfg.Broker.Timeout(),
		PriceConcurrency: cfg.Broker.PriceConcurrency,
	}, nil, metricsImpl)
	if cfg.Broker.BreakerEnabled {
		gateway = breaker.NewGateway(gateway, breaker.Config{
			ConsecutiveFailures: uint32(cfg.Broker.BreakerFailures),
			OpenTimeout:         cfg.Broker.BreakerOpenTimeout(),
		})
	}

	// 6. 初始化应用服务
	ingestor := application.NewBatchIngestor(instruments, gateway, store, publisher,
		application.WithRateLimit(cfg.Ingestion.OrdersPerSecond, cfg.Ingestion.Burst),
		application.WithIngestorMetrics(metricsImpl),
	)
	dispatcher := application.NewBatchDispatcher(ingestor,
		cfg.Ingestion.Workers, cfg.Ingestion.QueueSize, cfg.Ingestion.ReportHistory, metricsImpl)
	queryService := application.NewOrderQueryService(store, instruments)
	monitor := riskapp.NewStopLossMonitor(store, gateway, publisher, cfg.Monitor.Interval(), monitorOpts...)

	// 7. 初始化接口层
	// gRPC
	grpcSrv := grpc.NewServer()
	health := grpcserver.NewHealthServer(grpcSrv)

	// HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(
		middleware.GinRecoveryMiddleware(),
		middleware.GinLoggingMiddleware(),
		middleware.GinCORSMiddleware(),
		middleware.GinMetricsMiddleware(metricsImpl),
	)
	var submitGuards []gin.HandlerFunc
	if cfg.HTTP.SubmitRate > 0 {
		submitGuards = append(submitGuards, middleware.RateLimitMiddleware(submitLimiter, "orderbridge:submit", ratelimit.Limit{
			Rate:   cfg.HTTP.SubmitRate,
			Period: cfg.HTTP.SubmitPeriod(),
			Burst:  cfg.HTTP.SubmitBurst,
		}))
	}
	httpserver.NewOrderHandler(queryService, dispatcher).RegisterRoutes(&r.RouterGroup, submitGuards...)
	refhttp.NewInstrumentHandler(instruments).RegisterRoutes(r)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
	metricsSrv := metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)

	// 8. 启动服务
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	dispatcher.Start(ctx)

	g.Go(func() error {
		return monitor.Start(ctx)
	})

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		slog.Info("gRPC server starting", "addr", addr)
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			slog.Info("metrics server starting", "addr", metricsSrv.Addr, "path", cfg.Metrics.Path)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	// 9. 优雅关闭
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down servers...")

		health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown failed", "error", err)
		}
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", "error", err)
		}
		grpcSrv.GracefulStop()
		dispatcher.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// newInstrumentSource 按配置选择合约数据源，返回的关闭函数释放数据库连接
func newInstrumentSource(cfg *config.Config) (refdomain.InstrumentSource, func(), error) {
	switch cfg.Instruments.Source {
	case "mysql":
		database, err := db.Init(db.Config{
			Driver:             cfg.Database.Driver,
			DSN:                cfg.Database.DSN,
			MaxOpenConns:       cfg.Database.MaxOpenConns,
			MaxIdleConns:       cfg.Database.MaxIdleConns,
			ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
			LogEnabled:         cfg.Database.LogEnabled,
			SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
		})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", "error", err)
			}
		}
		return refmysql.NewInstrumentSource(database.DB, cfg.Instruments.Exchange), closeFn, nil
	default:
		return file.NewJSONSource(cfg.Instruments.Path), func() {}, nil
	}
}
