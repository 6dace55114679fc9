package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want error
	}{
		{name: "simple", key: "max_retries", want: nil},
		{name: "dotted", key: "database.pool.size", want: nil},
		{name: "empty", key: "", want: ErrInvalidKey},
		{name: "whitespace", key: "   ", want: ErrInvalidKey},
		{name: "newline", key: "a\nb", want: ErrInvalidKey},
		{name: "carriage return", key: "a\rb", want: ErrInvalidKey},
		{name: "too long", key: strings.Repeat("k", MaxKeyLength+1), want: ErrKeyTooLong},
		{name: "max length", key: strings.Repeat("k", MaxKeyLength), want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateKey(%q) = %v, want %v", tt.key, err, tt.want)
			}
		})
	}
}

func TestNewStore_Backends(t *testing.T) {
	ctx := context.Background()

	for _, backend := range []string{BackendSturdyc, BackendTTLCache} {
		t.Run(backend, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Backend = backend
			cfg.Capacity = 16
			cfg.NumShards = 4

			store, err := NewStore(cfg)
			if err != nil {
				t.Fatalf("NewStore(%s) failed: %v", backend, err)
			}

			if err := store.Set(ctx, "config:a", "1"); err != nil {
				t.Fatalf("set failed: %v", err)
			}
			value, ok, err := store.Get(ctx, "config:a")
			if err != nil || !ok || value != "1" {
				t.Errorf("expected hit with 1, got %q ok=%v err=%v", value, ok, err)
			}

			if _, ok := store.(PrefixDeleter); !ok {
				t.Errorf("expected %s store to support prefix deletes", backend)
			}
		})
	}
}

func TestNewStore_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = 0

	store, err := NewStore(cfg)
	if err == nil {
		t.Fatal("expected error for zero TTL")
	}
	if store != nil {
		t.Error("expected nil store on error")
	}
}

func TestConfig_RoundTripsThroughInternal(t *testing.T) {
	cfg := Config{
		Backend:            BackendTTLCache,
		Capacity:           5,
		NumShards:          2,
		TTL:                time.Minute,
		EvictionPercentage: 20,
		EvictionInterval:   time.Second,
	}

	if got := convertFromInternal(cfg.toInternal()); got != cfg {
		t.Errorf("expected %+v, got %+v", cfg, got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}
