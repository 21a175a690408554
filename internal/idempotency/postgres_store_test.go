package idempotency

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestPostgresStoreLifecycle(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	key := Key("wallet", "/api/v1/offers", "test-key")
	rec := Record{
		Fingerprint: Fingerprint([]byte("payload")),
		StatusCode:  201,
		Response:    []byte("payload"),
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   time.Now().Add(time.Minute).UTC(),
	}

	if err := store.Save(ctx, key, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.StatusCode != rec.StatusCode || got.Fingerprint != rec.Fingerprint {
		t.Fatalf("unexpected record: %#v", got)
	}

	expired := Key("wallet", "/api/v1/offers", "expired")
	rec.ExpiresAt = time.Now().Add(-time.Minute).UTC()
	if err := store.Save(ctx, expired, rec); err != nil {
		t.Fatalf("save expired: %v", err)
	}
	if got, _ := store.Get(ctx, expired); got != nil {
		t.Fatalf("expired record returned: %#v", got)
	}
	n, err := store.DeleteExpired(ctx)
	if err != nil || n < 1 {
		t.Fatalf("delete expired: %d %v", n, err)
	}
}
