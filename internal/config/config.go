package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN          string
	MongoURI         string
	RedisAddr        string
	RabbitURL        string
	TicketSecret     string
	ReservationTTL   time.Duration
	TransferTTL      time.Duration
	SweepInterval    time.Duration
	ListenAddr       string
	OTLPEndpoint     string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		CRDBDSN:        os.Getenv("CRDB_DSN"),
		MongoURI:       os.Getenv("MONGO_URI"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		TicketSecret:   os.Getenv("TICKET_SECRET"),
		ReservationTTL: duration("RESERVATION_TTL", 10*time.Minute),
		TransferTTL:    duration("TRANSFER_TTL", 24*time.Hour),
		SweepInterval:  duration("SWEEP_INTERVAL", time.Minute),
		ListenAddr:     addr("LISTEN_ADDR", ":8080"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func duration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func addr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
