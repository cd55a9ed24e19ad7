package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SettingsRepository reads and writes runtime settings with a per-key
// read-through cache. Invalidation on put is best effort; other workers
// tolerate seconds of staleness.
type SettingsRepository struct {
	db  *sql.DB
	ttl time.Duration

	mu    sync.RWMutex
	cache map[string]cachedSetting
}

type cachedSetting struct {
	value     string
	found     bool
	expiresAt time.Time
}

func NewSettingsRepository(db *sql.DB, cacheTTL time.Duration) *SettingsRepository {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &SettingsRepository{
		db:    db,
		ttl:   cacheTTL,
		cache: make(map[string]cachedSetting),
	}
}

func (r *SettingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, entry.found, nil
	}

	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	found := true
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return "", false, fmt.Errorf("read setting %s: %w", key, err)
		}
		found = false
	}

	r.mu.Lock()
	r.cache[key] = cachedSetting{
		value:     value,
		found:     found,
		expiresAt: time.Now().Add(r.ttl),
	}
	r.mu.Unlock()
	return value, found, nil
}

func (r *SettingsRepository) Put(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO settings (key, value, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}

	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
	return nil
}
