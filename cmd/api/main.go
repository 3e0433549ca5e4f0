package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/tessera-live/tessera/internal/adapters/crdb"
	mongoadapter "github.com/tessera-live/tessera/internal/adapters/mongo"
	redisadapter "github.com/tessera-live/tessera/internal/adapters/redis"
	"github.com/tessera-live/tessera/internal/checkin"
	"github.com/tessera-live/tessera/internal/clock"
	"github.com/tessera-live/tessera/internal/config"
	httphandler "github.com/tessera-live/tessera/internal/http"
	"github.com/tessera-live/tessera/internal/idempotency"
	"github.com/tessera-live/tessera/internal/observability"
	"github.com/tessera-live/tessera/internal/rateLimit"
	"github.com/tessera-live/tessera/internal/ticketing"
	"github.com/tessera-live/tessera/internal/token"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.TicketSecret == "" {
		log.Fatal("TICKET_SECRET must be set")
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)
	if err := repo.Migrate(context.Background()); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("tessera")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	sink := mongoadapter.NewAuditSink(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	clk := clock.NewSystem()
	codec := token.NewCodec([]byte(cfg.TicketSecret), clk)
	tickets := ticketing.NewService(repo, sink, codec, clk,
		ticketing.WithReservationTTL(cfg.ReservationTTL),
		ticketing.WithTransferTTL(cfg.TransferTTL),
	)
	validator := checkin.NewValidator(repo, sink, codec, clk)

	handlers := httphandler.NewHandlers(tickets, validator, repo, catalog, idemp)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	logger.WithField("addr", cfg.ListenAddr).Info("API server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
