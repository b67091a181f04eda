package testutil

import (
	"context"
	"fmt"
	"strconv"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisContainer is a throwaway Redis used as a credential store in
// integration tests
type RedisContainer struct {
	Container testcontainers.Container
	Host      string
	Port      int
}

// StartRedis starts a redis:7-alpine container and returns its address
func StartRedis(ctx context.Context) (*RedisContainer, error) {
	container, err := redis.Run(ctx, "redis:7-alpine",
		redis.WithLogLevel(redis.LogLevelVerbose),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get redis host: %w", err)
	}

	mapped, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get redis port: %w", err)
	}

	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("invalid redis port %q: %w", mapped.Port(), err)
	}

	return &RedisContainer{
		Container: container,
		Host:      host,
		Port:      port,
	}, nil
}

// Terminate stops the container
func (rc *RedisContainer) Terminate(ctx context.Context) error {
	if rc.Container == nil {
		return nil
	}
	if err := rc.Container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate redis: %w", err)
	}
	return nil
}
