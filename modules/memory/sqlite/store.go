package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/whrit/flow-agent-sub006/pkg/hook"
)

// Store is a namespaced key/value memory store with optional TTL expiry.
// Values are stored as JSON; non-serializable values are rejected.
type Store struct {
	db *sql.DB

	// now is injectable for testing. Nil means time.Now.
	now func() time.Time
}

// Compile-time interface check.
var _ hook.MemoryCache = (*Store)(nil)

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Get returns the value for (namespace, key). Expired entries are
// deleted on read and reported as missing.
func (s *Store) Get(ctx context.Context, namespace, key string) (any, bool, error) {
	var raw, expiresAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT value, expires_at FROM memory
		WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&raw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: get %s/%s: %w", namespace, key, err)
	}

	if expiresAt != "" {
		exp, perr := time.Parse(time.RFC3339Nano, expiresAt)
		if perr == nil && s.clock().After(exp) {
			_ = s.Delete(ctx, namespace, key)
			return nil, false, nil
		}
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, fmt.Errorf("sqlite: decode %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

// Set stores or replaces a value. A zero ttl means no expiry.
func (s *Store) Set(ctx context.Context, namespace, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sqlite: marshal %s/%s: %w", namespace, key, err)
	}

	expiresAt := ""
	if ttl > 0 {
		expiresAt = s.clock().Add(ttl).UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memory (namespace, key, value, expires_at)
		VALUES (?, ?, ?, ?)`,
		namespace, key, string(raw), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: set %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM memory WHERE namespace = ? AND key = ?`,
		namespace, key,
	); err != nil {
		return fmt.Errorf("sqlite: delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// PruneExpired deletes every expired entry and returns the count.
func (s *Store) PruneExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM memory WHERE expires_at != '' AND expires_at < ?`,
		s.clock().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
