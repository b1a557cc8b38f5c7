package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/daem0nmcp/daem0nmcp/internal/errs"
)

// ReplaceCommunities atomically replaces the community table with a freshly
// computed set, installed by GraphEngine.detect_communities.
func (s *Store) ReplaceCommunities(communities []Community) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "beginning community replace transaction")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM communities`); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "clearing communities")
	}
	for _, c := range communities {
		members, _ := json.Marshal(c.Members)
		var parentID any
		if c.ParentID != nil {
			parentID = *c.ParentID
		}
		if _, err := tx.Exec(`
			INSERT INTO communities (id, level, parent_id, members, summary, fresh_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.Level, parentID, string(members), c.Summary, c.FreshAt.Format(time.RFC3339Nano)); err != nil {
			return errs.Wrap(errs.StorageFailure, err, "inserting community")
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "committing community replace")
	}
	return nil
}

// ListCommunities returns all communities at a given level.
func (s *Store) ListCommunities(level int) ([]Community, error) {
	rows, err := s.db.Query(`SELECT id, level, parent_id, members, summary, fresh_at FROM communities WHERE level = ?`, level)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "querying communities")
	}
	defer rows.Close()

	var out []Community
	for rows.Next() {
		var c Community
		var parentID sql.NullInt64
		var members, freshAt string
		if err := rows.Scan(&c.ID, &c.Level, &parentID, &members, &c.Summary, &freshAt); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "scanning community row")
		}
		if parentID.Valid {
			v := parentID.Int64
			c.ParentID = &v
		}
		_ = json.Unmarshal([]byte(members), &c.Members)
		c.FreshAt, _ = time.Parse(time.RFC3339Nano, freshAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// AllCommunities returns every community across every level.
func (s *Store) AllCommunities() ([]Community, error) {
	rows, err := s.db.Query(`SELECT id, level, parent_id, members, summary, fresh_at FROM communities`)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "querying all communities")
	}
	defer rows.Close()

	var out []Community
	for rows.Next() {
		var c Community
		var parentID sql.NullInt64
		var members, freshAt string
		if err := rows.Scan(&c.ID, &c.Level, &parentID, &members, &c.Summary, &freshAt); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "scanning community row")
		}
		if parentID.Valid {
			v := parentID.Int64
			c.ParentID = &v
		}
		_ = json.Unmarshal([]byte(members), &c.Members)
		c.FreshAt, _ = time.Parse(time.RFC3339Nano, freshAt)
		out = append(out, c)
	}
	return out, rows.Err()
}
