package config

// Redis backs the distributed rate limiter on the credential endpoints. If the
// server cannot be reached at startup, NewRedisClient returns nil and callers
// run without rate limiting.

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// RedisConfig describes how to reach Redis.
//
//	REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//	REDIS_ADDR – host:port shorthand (host/port take precedence when both are set)
//	REDIS_PASSWORD – optional password
//	REDIS_DB – database number (default 0)
//	REDIS_TLS – enable TLS
type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     string `env:"REDIS_PORT"`
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	TLS      bool   `env:"REDIS_TLS" envDefault:"false"`
}

// LoadRedisConfig reads RedisConfig from the environment.
func LoadRedisConfig() (RedisConfig, error) {
	var rc RedisConfig
	if err := env.Parse(&rc); err != nil {
		return RedisConfig{}, fmt.Errorf("parse redis env: %w", err)
	}
	if rc.Host != "" && rc.Port != "" {
		rc.Addr = rc.Host + ":" + rc.Port
	}
	return rc, nil
}

// NewRedisClient instantiates a Redis client and pings it. The returned
// client is nil if a connection cannot be established.
func NewRedisClient(rc RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if rc.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      rc.Addr,
		Password:  rc.Password,
		DB:        rc.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
