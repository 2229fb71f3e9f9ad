package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"genstudio/internal/infra"
	"genstudio/internal/sqlinline"
)

const (
	ProviderGateway = "generation-gateway"
)

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) ProviderAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGateway)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetProviderAPIKey stores the gateway key together with the base URL it was
// issued for.
func (s *Store) SetProviderAPIKey(ctx context.Context, key, baseURL string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("provider api key is required")
	}
	var props map[string]any
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		props = map[string]any{"base_url": baseURL}
	}
	return s.upsert(ctx, ProviderGateway, key, props)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

// KeySource resolves the gateway key, preferring a static key and caching
// database lookups for ttl so rotated keys are picked up without a restart.
type KeySource struct {
	store  *Store
	static string
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	cached  string
	fetched time.Time
}

func NewKeySource(store *Store, static string, ttl time.Duration) *KeySource {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &KeySource{store: store, static: strings.TrimSpace(static), ttl: ttl, now: time.Now}
}

func (k *KeySource) Key(ctx context.Context) (string, error) {
	if k.static != "" || k.store == nil {
		return k.static, nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.fetched.IsZero() && k.now().Sub(k.fetched) < k.ttl {
		return k.cached, nil
	}
	key, err := k.store.ProviderAPIKey(ctx)
	if err != nil {
		if k.cached != "" {
			return k.cached, nil
		}
		return "", err
	}
	k.cached = key
	k.fetched = k.now()
	return key, nil
}
