/**
 * @description
 * This is the main entry point for the marketplace service. It is responsible
 * for initializing all components of the service, including configuration,
 * database connection, the payment processor client, the message broker,
 * repositories, the application services, the cron scheduler, and the HTTP
 * server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/billing, internal/config, internal/store: Internal packages.
 * - pkg/stripeclient: Client for the Stripe API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/upkeephq/marketplace-service/internal/api"
	"github.com/upkeephq/marketplace-service/internal/app"
	"github.com/upkeephq/marketplace-service/internal/billing"
	"github.com/upkeephq/marketplace-service/internal/config"
	"github.com/upkeephq/marketplace-service/internal/store"
	mqrabbit "github.com/upkeephq/marketplace-service/pkg/rabbitmq"
	"github.com/upkeephq/marketplace-service/pkg/stripeclient"
)

func main() {
	// Load .env for local development; absence is fine in deployed environments.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found, relying on environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.StripeSecretKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"stripe secret key must be configured\" env=STRIPE_SECRET_KEY")
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting marketplace-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish events. This service only
	// publishes; the notification layer consumes.
	var publisher mqrabbit.Publisher
	rabbitProducer, err := mqrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		publisher = &mqrabbit.FallbackPublisher{}
	} else {
		publisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}
	defer publisher.Close()

	// Initialize the payment processor client.
	stripeClient := stripeclient.NewClient(cfg.StripeAPIBaseURL, cfg.StripeSecretKey)

	// Redis backs the distributed rate limiter on money-movement endpoints.
	// A missing or unreachable Redis degrades to unlimited rather than failing boot.
	var redisClient *redis.Client
	if cfg.PaymentRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; payment rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; payment rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; payment rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application services with their dependencies.
	maintenanceService := app.NewMaintenanceService(repository, cfg.DueSoonDays)

	feeTiers := make([]billing.FeeTier, 0, len(cfg.HomeownerFeeTiers))
	for _, tier := range cfg.HomeownerFeeTiers {
		feeTiers = append(feeTiers, billing.FeeTier{
			MinCents: tier.MinCents,
			MaxCents: tier.MaxCents,
			FeeCents: tier.FeeCents,
		})
	}

	paymentService := app.NewPaymentService(repository, stripeClient, publisher, app.PaymentServiceConfig{
		AuthPolicy: billing.AuthorizationPolicy{
			BufferPercent:  cfg.AuthorizationBufferPercent,
			BufferCapCents: cfg.AuthorizationBufferCapCents,
		},
		ChangeOrders: billing.ChangeOrderPolicy{ThresholdPercent: cfg.ChangeOrderThresholdPercent},
		Disputes:     billing.DisputePolicy{WindowHours: cfg.DisputeWindowHours},
		ProviderFees: billing.ProviderFeeSchedule{
			Percent:      cfg.ProviderFeePercent,
			MinimumCents: cfg.ProviderFeeMinimumCents,
		},
		HomeownerFees: billing.HomeownerFeeSchedule{
			Tiers:           feeTiers,
			DefaultFeeCents: cfg.HomeownerDefaultFeeCents,
		},
		DiagnosticFees:     cfg.DiagnosticFees,
		DiagnosticFallback: cfg.DiagnosticFallbackFeeCents,
	})

	var limiter *app.RedisPaymentRateLimiter
	if redisClient != nil {
		limiter = app.NewRedisPaymentRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	// Initialize the API handlers.
	handlers := api.NewHandlers(maintenanceService, paymentService, limiter, cfg.PaymentRateLimitPerMinute)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/marketplace", api.MarketplaceRoutes(handlers, cfg.JWKSURL, cfg.InternalAPIKey))

	// Start the cron scheduler for expiry sweeps and reminder publishing.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	jobs := app.NewJobs(repository, publisher, logger, cfg.DueSoonDays)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	// Let in-flight cron jobs finish before exiting.
	<-scheduler.Stop().Done()

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
