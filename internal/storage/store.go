package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/raine/review-moderator/internal/moderation"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DefaultDecisionLimit is the number of decisions returned when no limit
// is given.
const DefaultDecisionLimit = 50

// SQLiteStore persists moderation decisions and cached verdicts.
type SQLiteStore struct {
	db *sql.DB
	// verdictTTL bounds the age of cached verdicts. Zero means no expiry.
	verdictTTL time.Duration
	mu         sync.RWMutex
	now        func() time.Time
}

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Configure SQLite with WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:  db,
		now: time.Now,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	// Product details can be sensitive; keep the file private.
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", dbPath).Msg("failed to restrict database permissions")
	}

	return store, nil
}

// WithVerdictTTL sets how long cached verdicts stay valid.
func (s *SQLiteStore) WithVerdictTTL(ttl time.Duration) *SQLiteStore {
	s.verdictTTL = ttl
	return s
}

func (s *SQLiteStore) init() error {
	decisionsQuery := `
	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		product_details TEXT NOT NULL,
		image_count INTEGER NOT NULL,
		approved INTEGER NOT NULL,
		reason TEXT NOT NULL,
		model TEXT NOT NULL,
		cached INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(decisionsQuery); err != nil {
		return fmt.Errorf("failed to create decisions table: %w", err)
	}

	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at)`); err != nil {
		return fmt.Errorf("failed to create decisions index: %w", err)
	}

	verdictCacheQuery := `
	CREATE TABLE IF NOT EXISTS verdict_cache (
		request_hash TEXT PRIMARY KEY,
		approved INTEGER NOT NULL,
		reason TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(verdictCacheQuery); err != nil {
		return fmt.Errorf("failed to create verdict_cache table: %w", err)
	}

	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordDecision implements moderation.DecisionLog.
func (s *SQLiteStore) RecordDecision(ctx context.Context, d *moderation.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, product_details, image_count, approved, reason, model, cached, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ProductDetails, d.ImageCount, d.Approved, d.Reason, d.Model, d.Cached, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// ListDecisions returns the most recent decisions, newest first.
func (s *SQLiteStore) ListDecisions(ctx context.Context, limit int) ([]moderation.Decision, error) {
	if limit <= 0 {
		limit = DefaultDecisionLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_details, image_count, approved, reason, model, cached, created_at
		FROM decisions ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	decisions := []moderation.Decision{}
	for rows.Next() {
		var d moderation.Decision
		if err := rows.Scan(&d.ID, &d.ProductDetails, &d.ImageCount, &d.Approved, &d.Reason, &d.Model, &d.Cached, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}

// GetVerdict implements moderation.VerdictCache. It returns nil, nil when
// no fresh entry exists.
func (s *SQLiteStore) GetVerdict(ctx context.Context, key string) (*moderation.ModerationVerdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v moderation.ModerationVerdict
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT approved, reason, created_at FROM verdict_cache WHERE request_hash = ?",
		key,
	).Scan(&v.Approved, &v.Reason, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query verdict cache: %w", err)
	}

	if s.verdictTTL > 0 && s.now().Sub(createdAt) > s.verdictTTL {
		return nil, nil
	}

	return &v, nil
}

// SetVerdict implements moderation.VerdictCache.
func (s *SQLiteStore) SetVerdict(ctx context.Context, key string, v *moderation.ModerationVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verdict_cache (request_hash, approved, reason, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(request_hash) DO UPDATE SET
			approved = excluded.approved,
			reason = excluded.reason,
			created_at = excluded.created_at`,
		key, v.Approved, v.Reason, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache verdict: %w", err)
	}
	return nil
}

// PruneVerdicts deletes cached verdicts older than the TTL and returns how
// many were removed.
func (s *SQLiteStore) PruneVerdicts(ctx context.Context) (int64, error) {
	if s.verdictTTL <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM verdict_cache WHERE created_at < ?",
		s.now().UTC().Add(-s.verdictTTL),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune verdict cache: %w", err)
	}
	return res.RowsAffected()
}

var (
	_ moderation.DecisionLog  = (*SQLiteStore)(nil)
	_ moderation.VerdictCache = (*SQLiteStore)(nil)
)
