package utils

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestConcurrencyScriptsInitialized(t *testing.T) {
	if concurrencyAcquireScript == nil || concurrencyReleaseScript == nil || concurrencyRefreshScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestNewConcurrencyCap_ValidatesArgs(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	cases := []struct {
		name  string
		rdb   *redis.Client
		key   string
		limit int
		ttl   time.Duration
	}{
		{"nil client", nil, "k", 1, time.Second},
		{"empty key", rdb, "", 1, time.Second},
		{"zero limit", rdb, "k", 0, time.Second},
		{"zero ttl", rdb, "k", 1, 0},
	}
	for _, tc := range cases {
		if _, err := NewConcurrencyCap(tc.rdb, tc.key, tc.limit, tc.ttl); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
	if _, err := NewConcurrencyCap(rdb, "k", 2, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
