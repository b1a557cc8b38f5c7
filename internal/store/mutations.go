package store

import (
	"database/sql"
	"time"

	"github.com/daem0nmcp/daem0nmcp/internal/errs"
)

// RecordOutcome writes (or idempotently replaces) the outcome on a memory.
func (s *Store) RecordOutcome(id int64, worked bool, text string) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	res, err := s.db.Exec(`
		UPDATE memories SET outcome_worked = ?, outcome_text = ?, outcome_recorded_at = ?
		WHERE id = ?`,
		boolToInt(worked), text, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "recording outcome")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.Newf(errs.NotFound, "memory %d not found", id)
	}
	return nil
}

// SetImportance updates a memory's importance_score (feedback EWMA result).
func (s *Store) SetImportance(id int64, score float64) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	_, err := s.db.Exec(`UPDATE memories SET importance_score = ? WHERE id = ?`, score, id)
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "updating importance score")
	}
	return nil
}

// SetSurprise sets a memory's surprise_score, normally only at insertion.
func (s *Store) SetSurprise(id int64, score float64) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	_, err := s.db.Exec(`UPDATE memories SET surprise_score = ? WHERE id = ?`, score, id)
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "updating surprise score")
	}
	return nil
}

// Pin sets or clears the pinned flag on a memory.
func (s *Store) Pin(id int64, pinned bool) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	res, err := s.db.Exec(`UPDATE memories SET pinned = ? WHERE id = ?`, boolToInt(pinned), id)
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "pinning memory")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.Newf(errs.NotFound, "memory %d not found", id)
	}
	return nil
}

// Archive sets the archived flag on a memory.
func (s *Store) Archive(id int64) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	res, err := s.db.Exec(`UPDATE memories SET archived = 1 WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "archiving memory")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.Newf(errs.NotFound, "memory %d not found", id)
	}
	return nil
}

// DeleteMemory permanently removes a memory row (used by maintain.prune).
func (s *Store) DeleteMemory(id int64) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	_, err := s.db.Exec(`DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "deleting memory")
	}
	_, _ = s.db.Exec(`DELETE FROM memory_versions WHERE memory_id = ?`, id)
	_, _ = s.db.Exec(`DELETE FROM links WHERE source = ? OR target = ?`, id, id)
	return nil
}

// Recall increments recall_count and sets last_recalled_at for a set of memories.
func (s *Store) Recall(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, id := range ids {
		if _, err := s.db.Exec(`UPDATE memories SET recall_count = recall_count + 1, last_recalled_at = ? WHERE id = ?`, now, id); err != nil {
			return errs.Wrap(errs.StorageFailure, err, "recording recall")
		}
	}
	return nil
}

// MergeRecallCount folds a superseded memory's recall_count and
// last_recalled_at into the survivor of a dedup merge, additively — unlike
// Recall, which bumps a live query-time hit by exactly one. last_recalled_at
// carries forward the later of the two timestamps.
func (s *Store) MergeRecallCount(keepID int64, addRecallCount int64, lastRecalledAt *time.Time) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	var current sql.NullString
	row := s.db.QueryRow(`SELECT last_recalled_at FROM memories WHERE id = ?`, keepID)
	if err := row.Scan(&current); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "reading last_recalled_at for recall merge")
	}

	newest := lastRecalledAt
	if current.Valid && current.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, current.String); err == nil {
			if newest == nil || t.After(*newest) {
				newest = &t
			}
		}
	}

	var lastRecalledAtArg any
	if newest != nil {
		lastRecalledAtArg = newest.Format(time.RFC3339Nano)
	}

	if _, err := s.db.Exec(`
		UPDATE memories SET recall_count = recall_count + ?, last_recalled_at = ?
		WHERE id = ?`, addRecallCount, lastRecalledAtArg, keepID); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "merging recall count")
	}
	return nil
}

// MarkPendingReindex flags a memory as excluded from retrieval until the
// background repair task re-indexes it.
func (s *Store) MarkPendingReindex(id int64, pending bool) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	_, err := s.db.Exec(`UPDATE memories SET pending_reindex = ? WHERE id = ?`, boolToInt(pending), id)
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "updating pending_reindex")
	}
	return nil
}

// UpdateContent rewrites a memory's content/rationale/context/tags, taking a
// version snapshot of the prior state first.
func (s *Store) UpdateContent(id int64, content, rationale, context string, tags []string) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if err := s.versionSnapshotLocked(id); err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE memories SET content = ?, rationale = ?, context = ?, tags = ?, transaction_time = ?
		WHERE id = ?`,
		content, rationale, context, marshalStrings(tags), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "updating memory content")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.Newf(errs.NotFound, "memory %d not found", id)
	}
	return nil
}
