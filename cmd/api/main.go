package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/checkout-gateway/internal/bootstrap"
	"github.com/noah-isme/checkout-gateway/internal/cart"
	"github.com/noah-isme/checkout-gateway/internal/commerce"
	"github.com/noah-isme/checkout-gateway/internal/common"
	"github.com/noah-isme/checkout-gateway/internal/config"
	"github.com/noah-isme/checkout-gateway/internal/health"
	"github.com/noah-isme/checkout-gateway/internal/notify"
	"github.com/noah-isme/checkout-gateway/internal/obs"
	"github.com/noah-isme/checkout-gateway/internal/ratelimit"
	"github.com/noah-isme/checkout-gateway/internal/resilience"
	"github.com/noah-isme/checkout-gateway/internal/sdkloader"
	"github.com/noah-isme/checkout-gateway/internal/security"
	"github.com/noah-isme/checkout-gateway/internal/shipping"
	"github.com/noah-isme/checkout-gateway/internal/tasks"
	"github.com/noah-isme/checkout-gateway/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "checkout")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.RegisterBreakerMetrics(nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "checkout-gateway",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	outboundTransport := otelhttp.NewTransport(http.DefaultTransport)
	commerceHTTP := resilience.HTTPClient{
		Client:  &http.Client{Transport: outboundTransport},
		Breaker: resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRate, cfg.BreakerOpenFor).WithLogger(logger),
		Timeout: cfg.OutboundTimeout,
	}
	commerceHTTP.Breaker.Target = "commerce-api"
	providerHTTP := resilience.HTTPClient{
		Client:  &http.Client{Transport: outboundTransport},
		Breaker: resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRate, cfg.BreakerOpenFor).WithLogger(logger),
		Timeout: cfg.OutboundTimeout,
	}
	providerHTTP.Breaker.Target = "paypal-proxy"
	scriptHTTP := resilience.HTTPClient{
		Client:  &http.Client{Transport: outboundTransport},
		Breaker: resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRate, cfg.BreakerOpenFor).WithLogger(logger),
		Timeout: cfg.OutboundTimeout,
	}
	scriptHTTP.Breaker.Target = "sdk-script"

	commerceClient := &commerce.Client{HTTP: commerceHTTP, BaseURL: cfg.CommerceBaseURL, APIKey: cfg.CommerceAPIKey}
	paypalClient := &wallet.PayPalClient{
		HTTP:       providerHTTP,
		BaseURL:    cfg.PayPalBaseURL,
		ClientID:   cfg.PayPalClientID,
		Secret:     cfg.PayPalSecret,
		MerchantID: cfg.PayPalMerchantID,
		Currencies: cfg.Currencies,
	}

	cartStore := &cart.Store{R: redisClient, TTL: cfg.CartTTL}
	notifyStore := &notify.Store{R: redisClient, TTL: cfg.NotificationTTL, Logger: logger}
	loader := sdkloader.New(scriptHTTP)

	asynqOpts := asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB}
	taskClient := asynq.NewClient(asynqOpts)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	initializer := &wallet.Initializer{
		Source:           paypalClient,
		Loader:           loader,
		Carts:            cartStore,
		FallbackCurrency: cfg.DefaultCurrency,
		ScriptURLs: map[wallet.Wallet]string{
			wallet.ApplePay:  cfg.ApplePayScriptURL,
			wallet.GooglePay: cfg.GooglePayScriptURL,
		},
		Logger: logger,
	}
	settlement := &wallet.Settlement{
		Orders:           commerceClient,
		Carts:            cartStore,
		Notify:           notifyStore,
		Tasks:            tasks.Enqueuer{Client: taskClient, Queue: cfg.ConfirmationQueue},
		ConfirmationPath: cfg.ConfirmationPath,
		Logger:           logger,
	}
	controller := &wallet.Controller{Settle: settlement, TTL: cfg.AttemptTTL, Logger: logger}
	eligibility := &wallet.Eligibility{Init: initializer, Reporter: commerceClient, Logger: logger}
	walletHandler := &wallet.Handler{
		Init:        initializer,
		Control:     controller,
		Eligibility: eligibility,
		StoreName:   cfg.StoreName,
		Validate:    validator.New(),
		Logger:      logger,
	}

	shippingSvc := &shipping.Service{
		Source: commerceClient,
		Cache:  shipping.NewCache(redisClient, cfg.ShippingCacheTTL),
		Logger: logger,
	}
	shippingHandler := &shipping.Handler{Svc: shippingSvc}

	bootstrapSvc := &bootstrap.Service{
		Source:     commerceClient,
		Carts:      cartStore,
		R:          redisClient,
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}
	bootstrapHandler := &bootstrap.Handler{Svc: bootstrapSvc}
	notifyHandler := &notify.Handler{Store: notifyStore}

	rateLimiter, err := ratelimit.New(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Session-ID", "X-CSRF-Token", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:        readinessChecker{redis: redisClient, commerce: commerceClient},
		RedisTimeout:   envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		BackendTimeout: envDurationMillis("HEALTH_READY_BACKEND_TIMEOUT_MS", 500),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/shipping-methods", shippingHandler.List)
		v.Post("/session/bootstrap", bootstrapHandler.SetInitialData)
		v.Get("/notifications", notifyHandler.List)

		v.Group(func(p chi.Router) {
			p.Use(ratelimit.Middleware(rateLimiter))
			p.Use(security.CSRF{Tokens: bootstrapSvc}.Middleware)
			p.Use(idem.Middleware)
			walletHandler.Routes(p)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	redis    *redis.Client
	commerce *commerce.Client
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func (c readinessChecker) PingBackend(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.commerce.GetShippingProvider(ctx, "")
	return err
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDurationMillis(key string, fallback int) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return time.Duration(fallback) * time.Millisecond
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return time.Duration(fallback) * time.Millisecond
	}
	return time.Duration(parsed) * time.Millisecond
}
