package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExecutor struct {
	token string
	err   error
	exec  struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return errors.New("no dest")
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestProviderAPIKey(t *testing.T) {
	store := NewStore(&stubExecutor{token: " abc123 "})
	key, err := store.ProviderAPIKey(context.Background())
	if err != nil {
		t.Fatalf("ProviderAPIKey error: %v", err)
	}
	if key != "abc123" {
		t.Fatalf("expected abc123, got %q", key)
	}
}

func TestProviderAPIKey_NoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	key, err := store.ProviderAPIKey(context.Background())
	if err != nil {
		t.Fatalf("ProviderAPIKey error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestSetProviderAPIKey(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.SetProviderAPIKey(context.Background(), "secret", "https://gateway.example.com"); err != nil {
		t.Fatalf("SetProviderAPIKey error: %v", err)
	}
	if len(exec.exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[0].(string); !ok || v != ProviderGateway {
		t.Fatalf("expected provider argument, got %T %v", exec.exec.args[0], exec.exec.args[0])
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
	if raw, ok := exec.exec.args[2].([]byte); !ok || string(raw) != `{"base_url":"https://gateway.example.com"}` {
		t.Fatalf("unexpected properties: %v", exec.exec.args[2])
	}
}

func TestSetProviderAPIKeyEmpty(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.SetProviderAPIKey(context.Background(), " ", ""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestKeySourcePrefersStaticKey(t *testing.T) {
	exec := &stubExecutor{token: "from-db"}
	src := NewKeySource(NewStore(exec), " from-env ", time.Minute)
	key, err := src.Key(context.Background())
	if err != nil {
		t.Fatalf("Key error: %v", err)
	}
	if key != "from-env" {
		t.Fatalf("expected from-env, got %q", key)
	}
}

func TestKeySourceCachesLookups(t *testing.T) {
	exec := &countingExecutor{stubExecutor: stubExecutor{token: "k1"}}
	src := NewKeySource(NewStore(exec), "", time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if key, err := src.Key(context.Background()); err != nil || key != "k1" {
			t.Fatalf("Key = %q, %v", key, err)
		}
	}
	if exec.rows != 1 {
		t.Fatalf("expected one lookup, got %d", exec.rows)
	}

	exec.token = "k2"
	now = now.Add(2 * time.Minute)
	if key, _ := src.Key(context.Background()); key != "k2" {
		t.Fatalf("expected refreshed key, got %q", key)
	}

	exec.err = errors.New("db down")
	now = now.Add(2 * time.Minute)
	if key, err := src.Key(context.Background()); err != nil || key != "k2" {
		t.Fatalf("expected last known key on error, got %q, %v", key, err)
	}
}

type countingExecutor struct {
	stubExecutor
	rows int
}

func (c *countingExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	c.rows++
	return c.stubExecutor.QueryRow(ctx, query, args...)
}
