package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/bookify-reservation/internal/cache"
	"github.com/iliyamo/bookify-reservation/internal/config"
	"github.com/iliyamo/bookify-reservation/internal/database"
	"github.com/iliyamo/bookify-reservation/internal/handler"
	"github.com/iliyamo/bookify-reservation/internal/middleware"
	"github.com/iliyamo/bookify-reservation/internal/observability"
	"github.com/iliyamo/bookify-reservation/internal/queue"
	"github.com/iliyamo/bookify-reservation/internal/repository"
	"github.com/iliyamo/bookify-reservation/internal/reservation"
	"github.com/iliyamo/bookify-reservation/internal/router"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// backend is what both stores provide.
type backend interface {
	reservation.Store
	reservation.PaymentStore
	cache.Catalog
}

func main() {
	_ = godotenv.Load() // a missing .env is fine
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, shutdownOTel, otelErr := observability.Setup(ctx, observability.Options{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		AuthHeader:  cfg.OTelAuthHeader,
		ServiceName: cfg.ServiceName,
		Version:     version,
	})
	if tp == nil {
		log.Fatalf("otel setup: %v", otelErr)
	}
	logger := observability.NewLogger(observability.LoggerOptions{
		ServiceName: cfg.ServiceName,
		Level:       cfg.LogLevel,
		OTel:        cfg.OTelEnabled && otelErr == nil,
	})
	if otelErr != nil {
		logger.Warn("otel log export disabled", zap.Error(otelErr))
	}

	err := run(ctx, cfg, logger, tp)

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := shutdownOTel(sctx); serr != nil {
		logger.Warn("otel shutdown", zap.Error(serr))
	}
	_ = logger.Sync()
	if err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, tp trace.TracerProvider) error {
	checks := map[string]handler.Check{}

	var store backend
	switch cfg.Store {
	case config.StoreMySQL:
		db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.DBMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				return err
			}
		}
		store = repository.NewMySQLStore(db)
		checks["mysql"] = db.PingContext
	default:
		logger.Warn("using the in-memory store; data is lost on restart")
		store = repository.NewMemoryStore()
	}

	var publishers []queue.Publisher
	if cfg.NotifierEnabled("rabbitmq") {
		publishers = append(publishers, queue.NewRabbitPublisher(cfg.RabbitURL, cfg.BookingQueue, logger))
	}
	if cfg.NotifierEnabled("kafka") {
		kp, err := queue.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.ServiceName, tp)
		if err != nil {
			return err
		}
		defer kp.Close()
		publishers = append(publishers, kp)
	}
	var opts []reservation.Option
	if len(publishers) > 0 {
		opts = append(opts, reservation.WithNotifier(queue.NewNotifier(logger, publishers...)))
	}

	payments := reservation.NewPayments(store, store, logger)
	svc := reservation.NewService(store, payments, logger, reservation.Config{
		MaxAttempts:   cfg.MaxAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		NotifyTimeout: cfg.NotifyTimeout,
	}, opts...)
	defer svc.Wait()

	// Redis is optional: without it rate limiting and both caches are off.
	var cacheClient redis.Cmdable
	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		logger.Warn("redis unavailable, rate limiting and caching disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		cacheClient = rdb
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	catalog := cache.NewListingCache(store, cacheClient, cfg.ListingCacheTTL, logger)

	e := newEcho(logger)
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)
	respCache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, logger)

	bookings := handler.NewBookingHandler(svc, logger)
	listings := handler.NewListingHandler(catalog, svc, logger)
	router.RegisterRoutes(e, handler.NewHealthHandler(checks))
	router.RegisterPublic(e, listings, limit, respCache)
	router.RegisterBookings(e, bookings, handler.NewPaymentHandler(payments, svc, logger), cfg.JWTSecret, limit)
	router.RegisterHost(e, listings, bookings, cfg.JWTSecret, limit)
	router.RegisterAdmin(e, bookings, cfg.JWTSecret)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.Store))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.ConsumerEnabled {
		g.Go(func() error {
			err := queue.StartBookingConsumer(gctx, queue.ConsumerConfig{
				URL:    cfg.RabbitURL,
				Queue:  cfg.BookingQueue,
				LogDir: cfg.BookingLogDir,
			}, logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	})
	return g.Wait()
}

func newEcho(logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	httpLog := logger.Named("http")
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				httpLog.Error("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			httpLog.Info("request", fields...)
			return nil
		},
	}))
	return e
}
