package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"dressify/backend/internal/config"
	"dressify/backend/internal/store/memory"
)

func TestValidateConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]config.Config{
		"both stores":    {Port: "8080", DatabaseURL: "postgres://x", MongoURI: "mongodb://x", MongoDatabase: "dressify"},
		"non-numeric":    {Port: "http"},
		"port range":     {Port: "70000"},
		"empty mongo db": {Port: "8080", MongoURI: "mongodb://x"},
	}
	for name, cfg := range cases {
		if err := validateConfig(cfg); err == nil {
			t.Fatalf("%s: expected configuration to be rejected", name)
		}
	}
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	if err := validateConfig(config.Config{Port: "8080", MongoDatabase: "dressify"}); err != nil {
		t.Fatalf("expected default config to pass, got %v", err)
	}
}

func TestOpenRepositoryFallsBackToMemory(t *testing.T) {
	repo, closers, err := openRepository(context.Background(), config.Config{SeedDemoData: true}, zap.NewNop())
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if len(closers) != 0 {
		t.Fatalf("expected no closers for memory store, got %d", len(closers))
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", repo)
	}

	products, err := repo.ListProducts(context.Background())
	if err != nil || len(products) == 0 {
		t.Fatalf("expected seeded products, got %d (err %v)", len(products), err)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger(config.Config{LogLevel: "chatty"}); err == nil {
		t.Fatalf("expected unknown log level to be rejected")
	}
	logger, err := newLogger(config.Config{LogLevel: "warn", AppEnv: "production"})
	if err != nil {
		t.Fatalf("expected production logger, got %v", err)
	}
	if logger.Core().Enabled(zap.InfoLevel) {
		t.Fatalf("expected info to be disabled at warn level")
	}
}
