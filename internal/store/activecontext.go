package store

import (
	"time"

	"github.com/daem0nmcp/daem0nmcp/internal/errs"
)

const maxActiveContextEntries = 10

// PutActiveContext pins a memory into working context. Rejects a duplicate
// memory id and enforces the 10-entry cap (spec.md §3).
func (s *Store) PutActiveContext(e ActiveContextEntry) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	var existing int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM active_context WHERE memory_id = ?`, e.MemoryID)
	if err := row.Scan(&existing); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "checking active context duplicate")
	}
	if existing > 0 {
		return errs.Newf(errs.Conflict, "memory %d is already in active context", e.MemoryID)
	}

	var count int
	row = s.db.QueryRow(`SELECT COUNT(*) FROM active_context`)
	if err := row.Scan(&count); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "counting active context entries")
	}
	if count >= maxActiveContextEntries {
		return errs.New(errs.InvalidArgument, "active context is full (max 10 entries)")
	}

	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now().UTC()
	}
	var expiresAt any
	if e.ExpiresAt != nil {
		expiresAt = e.ExpiresAt.Format(time.RFC3339Nano)
	}
	_, err := s.db.Exec(`
		INSERT INTO active_context (memory_id, priority, reason, expires_at, added_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.MemoryID, e.Priority, e.Reason, expiresAt, e.AddedAt.Format(time.RFC3339Nano))
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "inserting active context entry")
	}
	return nil
}

// ListActiveContext returns unexpired active context entries, lazily
// removing any whose expiry has passed (spec.md invariant 6).
func (s *Store) ListActiveContext() ([]ActiveContextEntry, error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	now := time.Now().UTC()
	_, err := s.db.Exec(`DELETE FROM active_context WHERE expires_at IS NOT NULL AND expires_at < ?`,
		now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "pruning expired active context entries")
	}

	rows, err := s.db.Query(`SELECT memory_id, priority, reason, expires_at, added_at FROM active_context ORDER BY priority DESC`)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "querying active context")
	}
	defer rows.Close()

	var out []ActiveContextEntry
	for rows.Next() {
		var e ActiveContextEntry
		var expiresAt, addedAt any
		if err := rows.Scan(&e.MemoryID, &e.Priority, &e.Reason, &expiresAt, &addedAt); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "scanning active context row")
		}
		if s, ok := addedAt.(string); ok {
			e.AddedAt, _ = time.Parse(time.RFC3339Nano, s)
		}
		if s, ok := expiresAt.(string); ok && s != "" {
			t, _ := time.Parse(time.RFC3339Nano, s)
			e.ExpiresAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RemoveActiveContext removes a memory from working context.
func (s *Store) RemoveActiveContext(memoryID int64) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	_, err := s.db.Exec(`DELETE FROM active_context WHERE memory_id = ?`, memoryID)
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "removing active context entry")
	}
	return nil
}
