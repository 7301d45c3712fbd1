//go:build integration
// +build integration

package test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/MrEthical07/cyclecore"
	"github.com/MrEthical07/cyclecore/keys"
	"github.com/MrEthical07/cyclecore/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newIntegrationEngine builds an engine over its own client to the shared miniredis, the way two
// daemon instances share one Redis deployment.
func newIntegrationEngine(t *testing.T, mr *miniredis.Miniredis, provider *keys.Provider) *cyclecore.Engine {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := cyclecore.DefaultConfig()
	cfg.Password = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32, MinLength: 8}

	engine, err := cyclecore.New().
		WithConfig(cfg).
		WithKeyProvider(provider).
		WithRedis(rdb).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func newProvider(t *testing.T, kid string) *keys.Provider {
	t.Helper()
	pair, err := keys.GenerateEd25519(kid)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	p, err := keys.NewProvider(pair)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	return p
}
