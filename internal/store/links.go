package store

import (
	"database/sql"
	"time"

	"github.com/daem0nmcp/daem0nmcp/internal/errs"
)

// PutLink creates a directed link. If relationship is "supersedes", also
// sets superseded_by on the target's row and checks for cycles in the
// resulting graph, returning errs.InvalidArgument if one would be created.
func (s *Store) PutLink(l Link) error {
	if !ValidRelationship(l.Relationship) {
		return errs.Newf(errs.InvalidArgument, "invalid relationship %q", l.Relationship)
	}
	if l.Source == l.Target {
		return errs.New(errs.InvalidArgument, "a memory cannot link to itself")
	}

	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if l.Relationship == RelSupersedes {
		if err := s.wouldCycleLocked(l.Source, l.Target); err != nil {
			return err
		}
	}

	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO links (source, target, relationship, created_at) VALUES (?, ?, ?, ?)`,
		l.Source, l.Target, string(l.Relationship), l.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "inserting link")
	}

	if l.Relationship == RelSupersedes {
		if err := s.versionSnapshotLocked(l.Target); err != nil {
			return err
		}
		if _, err := s.db.Exec(`UPDATE memories SET superseded_by = ? WHERE id = ?`, l.Source, l.Target); err != nil {
			return errs.Wrap(errs.StorageFailure, err, "setting superseded_by")
		}
	}
	return nil
}

// wouldCycleLocked reports whether adding source-supersedes->target would
// introduce a cycle in the superseded_by graph, walking forward from target
// through existing supersedes links until it reaches source.
func (s *Store) wouldCycleLocked(source, target int64) error {
	visited := map[int64]bool{source: true}
	cur := target
	for i := 0; i < 100000; i++ {
		if cur == source {
			return errs.New(errs.InvalidArgument, "link would create a cycle in the supersedes graph")
		}
		if visited[cur] {
			break
		}
		visited[cur] = true

		var next sql.NullInt64
		row := s.db.QueryRow(`SELECT target FROM links WHERE source = ? AND relationship = ?`, cur, string(RelSupersedes))
		if err := row.Scan(&next); err != nil {
			break
		}
		if !next.Valid {
			break
		}
		cur = next.Int64
	}
	return nil
}

// DelLink removes a link.
func (s *Store) DelLink(source, target int64, rel Relationship) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	_, err := s.db.Exec(`DELETE FROM links WHERE source = ? AND target = ? AND relationship = ?`, source, target, string(rel))
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "deleting link")
	}
	return nil
}

// OutEdges returns links originating at id.
func (s *Store) OutEdges(id int64) ([]Link, error) {
	return s.queryEdges(`SELECT source, target, relationship, created_at FROM links WHERE source = ?`, id)
}

// InEdges returns links terminating at id.
func (s *Store) InEdges(id int64) ([]Link, error) {
	return s.queryEdges(`SELECT source, target, relationship, created_at FROM links WHERE target = ?`, id)
}

func (s *Store) queryEdges(query string, id int64) ([]Link, error) {
	rows, err := s.db.Query(query, id)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "querying links")
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		var l Link
		var createdAt string
		if err := rows.Scan(&l.Source, &l.Target, &l.Relationship, &createdAt); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "scanning link row")
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

// AllLinks returns every link in the store, for GraphEngine adjacency rebuilds.
func (s *Store) AllLinks() ([]Link, error) {
	rows, err := s.db.Query(`SELECT source, target, relationship, created_at FROM links`)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "querying all links")
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		var l Link
		var createdAt string
		if err := rows.Scan(&l.Source, &l.Target, &l.Relationship, &createdAt); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "scanning link row")
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}
