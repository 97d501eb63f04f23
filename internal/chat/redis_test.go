package chat

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisHistoryStore, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisHistoryStore(client, "chatdesk:hist", time.Hour), mini
}

func TestRedisHistoryRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, "s1", Turn{Role: RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, "s1", Turn{Role: RoleAssistant, Content: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	turns, err := store.Turns(ctx, "s1")
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Content != "hello" {
		t.Fatalf("unexpected first turn %+v", turns[0])
	}
	if turns[1].Role != RoleAssistant || turns[1].Content != "hi" {
		t.Fatalf("unexpected second turn %+v", turns[1])
	}
}

func TestRedisHistoryKeyPrefixAndTTL(t *testing.T) {
	store, mini := newRedisStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, "s1", Turn{Role: RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if !mini.Exists("chatdesk:hist:s1") {
		t.Fatalf("expected prefixed key in redis")
	}
	if mini.TTL("chatdesk:hist:s1") <= 0 {
		t.Fatalf("expected ttl on history key")
	}
}

func TestRedisHistoryDropLast(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	_ = store.Append(ctx, "s1", Turn{Role: RoleUser, Content: "kept"})
	_ = store.Append(ctx, "s1", Turn{Role: RoleUser, Content: "rolled back"})

	if err := store.DropLast(ctx, "s1"); err != nil {
		t.Fatalf("drop last: %v", err)
	}

	turns, err := store.Turns(ctx, "s1")
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "kept" {
		t.Fatalf("expected only the first turn, got %+v", turns)
	}

	if err := store.DropLast(ctx, "missing"); err != nil {
		t.Fatalf("drop last on missing session: %v", err)
	}
}

func TestRedisHistoryClear(t *testing.T) {
	store, mini := newRedisStore(t)
	ctx := context.Background()

	_ = store.Append(ctx, "s1", Turn{Role: RoleUser, Content: "hello"})
	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if mini.Exists("chatdesk:hist:s1") {
		t.Fatalf("expected history key removed")
	}
	turns, err := store.Turns(ctx, "s1")
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected empty transcript after clear, got %d turns", len(turns))
	}
}
