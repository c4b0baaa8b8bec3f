package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sportscarhub/storefront/internal/access"
	"github.com/sportscarhub/storefront/internal/cache"
	"github.com/sportscarhub/storefront/internal/circuitbreaker"
	"github.com/sportscarhub/storefront/internal/config"
	"github.com/sportscarhub/storefront/internal/consumer"
	h "github.com/sportscarhub/storefront/internal/http"
	"github.com/sportscarhub/storefront/internal/logger"
	"github.com/sportscarhub/storefront/internal/metrics"
	"github.com/sportscarhub/storefront/internal/notify"
	"github.com/sportscarhub/storefront/internal/publisher"
	"github.com/sportscarhub/storefront/internal/repository"
	"github.com/sportscarhub/storefront/internal/service"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func main() {
	configPath := flag.String("config", os.Getenv("STOREFRONT_CONFIG"), "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := logger.New("storefront", "info", false)
		l.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New("storefront", cfg.Log.Level, cfg.Log.Pretty)
	log.Info().Str("store", cfg.Store.Driver).Bool("kafka", cfg.KafkaEnabled()).Msg("storefront starting")

	// incoming traceparent headers become the request span context, so
	// request logs carry the caller's trace id
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	connectCtx, cancelConnect := context.WithTimeout(ctx, 30*time.Second)
	store, err := repository.Open(connectCtx, repository.OpenOptions{
		Driver: cfg.Store.Driver,
		Postgres: &repository.Credentials{
			Host:     cfg.Store.Host,
			Port:     cfg.Store.Port,
			User:     cfg.Store.User,
			Password: cfg.Store.Password,
			DBName:   cfg.Store.DBName,
			SSLMode:  cfg.Store.SSLMode,
		},
		SQLiteDSN:     cfg.Store.SQLitePath,
		MongoURI:      cfg.Store.MongoURI,
		MongoDatabase: cfg.Store.MongoDatabase,
	})
	cancelConnect()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()
	log.Info().Msg("store ready")

	var cartCache cache.CartCache = cache.Noop{}
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// the cart works without its cache; reads fall through to the store
			log.Warn().Err(err).Msg("redis ping failed")
		}
		cartCache = cache.NewRedisCache(redisClient, cfg.Redis.CartTTL)
	}

	hub := notify.NewHub(0, log)
	defer hub.Close()

	var wg sync.WaitGroup
	var sink publisher.Sink
	var notifier service.Notifier
	if cfg.KafkaEnabled() {
		breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("kafka"), m, log)
		kafkaSink := publisher.NewKafkaSink(publisher.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...), breaker)
		defer kafkaSink.Close()
		sink = kafkaSink

		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			host, _ := os.Hostname()
			groupID = "storefront-watch-" + host
		}
		c := consumer.NewConsumer(hub, log, cfg.Kafka.Topic, groupID, cfg.Kafka.Brokers...)
		defer c.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Run(ctx)
		}()
	} else {
		sink = publisher.NewLogSink(log)
		notifier = hub
	}

	poller := publisher.NewOutboxPoller(store, sink, m, log).WithInterval(cfg.Kafka.PollInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	carts := service.NewCartService(store, store, cartCache, log)
	checkoutOpts := []service.CheckoutOption{
		service.WithCheckoutMetrics(m),
		service.WithCartInvalidator(carts),
	}
	ordersOpts := []service.OrdersOption{
		service.WithEventHub(hub),
		service.WithOrdersMetrics(m),
	}
	if notifier != nil {
		checkoutOpts = append(checkoutOpts, service.WithCheckoutNotifier(notifier))
		ordersOpts = append(ordersOpts, service.WithOrdersNotifier(notifier))
	}
	checkout := service.NewCheckoutService(store, store, log, checkoutOpts...)
	orders := service.NewOrdersService(store, access.NewPolicy(cfg.Auth.OperatorIDs...), log, ordersOpts...)

	if cfg.Auth.DevHeaders {
		log.Warn().Msg("dev identity headers are enabled; do not expose this listener")
	}
	limiter := h.NewRateLimiter(cfg.HTTP.CheckoutRate, cfg.HTTP.CheckoutBurst)
	wg.Add(1)
	go func() {
		defer wg.Done()
		limiter.RunSweeper(ctx, 5*time.Minute)
	}()

	router := h.NewRouter(h.RouterConfig{
		Catalog:            store,
		Carts:              carts,
		Checkout:           checkout,
		Orders:             orders,
		Auth:               h.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.DevHeaders),
		CheckoutLimit:      limiter,
		Metrics:            m,
		MetricsHandler:     metrics.Handler(reg),
		Logger:             log,
		RequestTimeout:     cfg.HTTP.RequestTimeout,
		MaxRequestBodySize: cfg.HTTP.MaxRequestBodySize,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	shutdown(log, srv, hub, cfg.HTTP.ShutdownTimeout)
	wg.Wait()
	log.Info().Msg("storefront stopped")
}

// shutdown drains in-flight requests. Event streams end when the hub closes.
func shutdown(log zerolog.Logger, srv *http.Server, hub *notify.Hub, timeout time.Duration) {
	log.Info().Msg("shutting down server...")
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
}
