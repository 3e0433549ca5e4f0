package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tessera-live/tessera/internal/adapters/crdb"
	mongoadapter "github.com/tessera-live/tessera/internal/adapters/mongo"
	"github.com/tessera-live/tessera/internal/clock"
	"github.com/tessera-live/tessera/internal/config"
	"github.com/tessera-live/tessera/internal/observability"
	"github.com/tessera-live/tessera/internal/reconcile"
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

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	sink := mongoadapter.NewAuditSink(mongoClient.Database("tessera"), logger)

	clk := clock.NewSystem()
	codec := token.NewCodec([]byte(cfg.TicketSecret), clk)
	tickets := ticketing.NewService(repo, sink, codec, clk,
		ticketing.WithReservationTTL(cfg.ReservationTTL),
	)

	worker := reconcile.NewWorker(repo, tickets, sink, clk, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, cfg.SweepInterval)
	logger.Info("Reconciler started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown reconciler")
}
