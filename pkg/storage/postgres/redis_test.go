package postgres

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/lukewarren/shelfd/pkg/storage"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := storage.DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	client, err := NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestNewRedisClientBadURL(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.RedisURL = "not a url"

	if _, err := NewRedisClient(cfg); err == nil {
		t.Error("expected error for malformed URL")
	}
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := storage.DefaultConfig()
	cfg.RedisURL = "redis://" + addr

	if _, err := NewRedisClient(cfg); err == nil {
		t.Error("expected error when redis is down")
	}
}
