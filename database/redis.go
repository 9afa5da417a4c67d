package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"time"

	"socialfeed/config"

	"github.com/redis/go-redis/v9"
)

// NewRedis connects to Redis and pings it. It returns nil, nil when no
// address is configured; callers then fall back to per-process limits.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Printf("Connected to Redis at %s", cfg.Addr)
	return client, nil
}
