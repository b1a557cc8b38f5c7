package store

import (
	"database/sql"
	"time"

	"github.com/daem0nmcp/daem0nmcp/internal/errs"
)

// PutPreflightToken persists an issued token.
func (s *Store) PutPreflightToken(t PreflightToken) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO preflight_tokens (value, project, description_hash, issued_at) VALUES (?, ?, ?, ?)`,
		t.Value, t.Project, t.DescriptionHash, t.IssuedAt.Format(time.RFC3339Nano))
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "persisting preflight token")
	}
	return nil
}

// GetPreflightToken looks up a token by value.
func (s *Store) GetPreflightToken(value string) (*PreflightToken, error) {
	row := s.db.QueryRow(`SELECT value, project, description_hash, issued_at FROM preflight_tokens WHERE value = ?`, value)
	var t PreflightToken
	var issuedAt string
	if err := row.Scan(&t.Value, &t.Project, &t.DescriptionHash, &issuedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.New(errs.NotFound, "preflight token not found")
		}
		return nil, errs.Wrap(errs.StorageFailure, err, "reading preflight token")
	}
	t.IssuedAt, _ = time.Parse(time.RFC3339Nano, issuedAt)
	return &t, nil
}

// PruneExpiredPreflightTokens deletes tokens issued before cutoff, keeping
// the table small. Expired tokens are never treated as valid regardless of
// whether this has run yet — validity is always computed from issued_at.
func (s *Store) PruneExpiredPreflightTokens(cutoff time.Time) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	_, err := s.db.Exec(`DELETE FROM preflight_tokens WHERE issued_at < ?`, cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "pruning expired preflight tokens")
	}
	return nil
}
