package store

import (
	"database/sql"
	"time"

	"github.com/daem0nmcp/daem0nmcp/internal/errs"
)

// PromoteFact inserts an immutable fact keyed by key. Returns errs.Conflict
// if the key already exists — facts are promoted exactly once.
func (s *Store) PromoteFact(key, content string, sourceMemoryID int64) (int64, error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO facts (key, content, source_memory_id, promoted_at) VALUES (?, ?, ?, ?)`,
		key, content, sourceMemoryID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, errs.Newf(errs.Conflict, "fact %q already promoted", key).WithRemediation("facts are immutable once promoted")
	}
	return res.LastInsertId()
}

// GetFact looks up a fact by key in O(1).
func (s *Store) GetFact(key string) (*Fact, error) {
	row := s.db.QueryRow(`SELECT id, key, content, source_memory_id, promoted_at FROM facts WHERE key = ?`, key)
	var f Fact
	var promotedAt string
	if err := row.Scan(&f.ID, &f.Key, &f.Content, &f.SourceID, &promotedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.Newf(errs.NotFound, "fact %q not found", key)
		}
		return nil, errs.Wrap(errs.StorageFailure, err, "reading fact")
	}
	f.PromotedAt, _ = time.Parse(time.RFC3339Nano, promotedAt)
	return &f, nil
}

// IncrementSuccessCounter bumps the per-content success counter for a
// learning memory and returns the new count.
func (s *Store) IncrementSuccessCounter(contentKey string) (int, error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO success_counters (content_key, count) VALUES (?, 1)
		ON CONFLICT(content_key) DO UPDATE SET count = count + 1`, contentKey)
	if err != nil {
		return 0, errs.Wrap(errs.StorageFailure, err, "incrementing success counter")
	}
	var count int
	row := s.db.QueryRow(`SELECT count FROM success_counters WHERE content_key = ?`, contentKey)
	if err := row.Scan(&count); err != nil {
		return 0, errs.Wrap(errs.StorageFailure, err, "reading success counter")
	}
	return count, nil
}
