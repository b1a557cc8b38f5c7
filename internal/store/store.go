// Package store persists daem0nmcp's entities to a local embedded database
// file under <project>/.daem0nmcp/storage/daem0nmcp.db. Writes are
// serialized through a process-wide mutex; reads take no lock and observe
// the latest committed state at call start, mirroring the single-writer,
// multiple-reader discipline spec.md §4.1/§5 require.
package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/daem0nmcp/daem0nmcp/internal/errs"
)

//go:embed schema.sql
var schema string

// Store is the embedded persistence layer for one project.
type Store struct {
	db       *sql.DB
	writerMu sync.Mutex
	lock     *flock.Flock
	dir      string
}

// Open opens (creating if necessary) the database under <projectPath>/.daem0nmcp,
// acquiring the exclusive writer lock file. Returns errs.LockHeld if another
// process already owns the directory.
func Open(projectPath string) (*Store, error) {
	base := filepath.Join(projectPath, ".daem0nmcp")
	storageDir := filepath.Join(base, "storage")
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "creating storage directory")
	}
	if err := os.MkdirAll(filepath.Join(base, "vectors"), 0o755); err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "creating vectors directory")
	}
	if err := os.MkdirAll(filepath.Join(base, "cache"), 0o755); err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "creating cache directory")
	}

	lockPath := filepath.Join(base, "lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "acquiring writer lock")
	}
	if !locked {
		return nil, errs.New(errs.LockHeld, "another daem0nmcp process owns this project directory").
			WithRemediation("stop the other daem0nmcp process for this project, or remove .daem0nmcp/lock if it is stale")
	}

	dbPath := filepath.Join(storageDir, "daem0nmcp.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		lock.Unlock()
		return nil, errs.Wrap(errs.StorageFailure, err, "opening database")
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			lock.Unlock()
			return nil, errs.Wrap(errs.StorageFailure, err, "configuring database: "+pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		lock.Unlock()
		return nil, errs.Wrap(errs.StorageFailure, err, "applying schema")
	}

	return &Store{db: db, lock: lock, dir: base}, nil
}

// Close releases the database handle and the writer lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

// Dir returns the <project>/.daem0nmcp directory this store owns.
func (s *Store) Dir() string { return s.dir }

func marshalStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var v []string
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

// PutMemory assigns an id, writes the row, and returns the id. Fails with
// errs.StorageFailure on I/O error.
func (s *Store) PutMemory(d Draft) (int64, error) {
	if !ValidCategory(d.Category) {
		return 0, errs.Newf(errs.InvalidArgument, "invalid category %q", d.Category)
	}
	if d.Content == "" {
		return 0, errs.New(errs.InvalidArgument, "content must not be empty")
	}
	if len(d.Content) > 64*1024 {
		return 0, errs.New(errs.InvalidArgument, "content exceeds 64 KiB")
	}

	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	now := time.Now().UTC()
	validTime := now
	if d.HappenedAt != nil {
		if d.HappenedAt.After(now) {
			return 0, errs.New(errs.InvalidArgument, "happened_at must not be in the future")
		}
		validTime = *d.HappenedAt
	}

	res, err := s.db.Exec(`
		INSERT INTO memories (category, content, rationale, context, tags, file_path, entities,
			valid_time, transaction_time, archived, pinned, importance_score, surprise_score, recall_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, 0.5, 0, 0)`,
		string(d.Category), d.Content, d.Rationale, d.Context,
		marshalStrings(d.Tags), d.FilePath, marshalStrings(d.Entities),
		validTime.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), boolToInt(d.Pinned),
	)
	if err != nil {
		return 0, errs.Wrap(errs.StorageFailure, err, "inserting memory")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errs.Wrap(errs.StorageFailure, err, "reading inserted memory id")
	}
	return id, nil
}

// GetMemory returns a memory by id, or errs.NotFound.
func (s *Store) GetMemory(id int64) (*Memory, error) {
	row := s.db.QueryRow(`
		SELECT id, category, content, rationale, context, tags, file_path, entities,
			valid_time, transaction_time, superseded_by, archived, pinned,
			importance_score, surprise_score, outcome_worked, outcome_text, outcome_recorded_at,
			recall_count, last_recalled_at, pending_reindex
		FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, errs.Newf(errs.NotFound, "memory %d not found", id)
	}
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "reading memory")
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var m Memory
	var tags, entities string
	var validTime, txTime string
	var supersededBy sql.NullInt64
	var archived, pinned, pendingReindex int
	var outcomeWorked sql.NullInt64
	var outcomeText, outcomeRecordedAt sql.NullString
	var lastRecalledAt sql.NullString

	if err := row.Scan(&m.ID, &m.Category, &m.Content, &m.Rationale, &m.Context,
		&tags, &m.FilePath, &entities, &validTime, &txTime, &supersededBy,
		&archived, &pinned, &m.ImportanceScore, &m.SurpriseScore,
		&outcomeWorked, &outcomeText, &outcomeRecordedAt,
		&m.RecallCount, &lastRecalledAt, &pendingReindex); err != nil {
		return nil, err
	}

	m.Tags = unmarshalStrings(tags)
	m.Entities = unmarshalStrings(entities)
	m.ValidTime, _ = time.Parse(time.RFC3339Nano, validTime)
	m.TransactionTime, _ = time.Parse(time.RFC3339Nano, txTime)
	m.Archived = archived != 0
	m.Pinned = pinned != 0
	m.PendingReindex = pendingReindex != 0
	if supersededBy.Valid {
		v := supersededBy.Int64
		m.SupersededBy = &v
	}
	if outcomeWorked.Valid {
		recordedAt, _ := time.Parse(time.RFC3339Nano, outcomeRecordedAt.String)
		m.Outcome = &Outcome{Worked: outcomeWorked.Int64 != 0, Text: outcomeText.String, RecordedAt: recordedAt}
	}
	if lastRecalledAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, lastRecalledAt.String)
		m.LastRecalledAt = &t
	}
	return &m, nil
}

// IterMemories returns memories matching filter, newest transaction_time first.
func (s *Store) IterMemories(f Filter) ([]*Memory, error) {
	query := `SELECT id, category, content, rationale, context, tags, file_path, entities,
		valid_time, transaction_time, superseded_by, archived, pinned,
		importance_score, surprise_score, outcome_worked, outcome_text, outcome_recorded_at,
		recall_count, last_recalled_at, pending_reindex FROM memories WHERE 1=1`
	var args []any

	if len(f.Categories) > 0 {
		query += " AND category IN (" + placeholders(len(f.Categories)) + ")"
		for _, c := range f.Categories {
			args = append(args, string(c))
		}
	}
	if f.FilePrefix != "" {
		query += " AND file_path LIKE ?"
		args = append(args, f.FilePrefix+"%")
	}
	if f.Since != nil {
		query += " AND transaction_time >= ?"
		args = append(args, f.Since.Format(time.RFC3339Nano))
	}
	if f.Until != nil {
		query += " AND transaction_time <= ?"
		args = append(args, f.Until.Format(time.RFC3339Nano))
	}
	if f.Archived != nil {
		query += " AND archived = ?"
		args = append(args, boolToInt(*f.Archived))
	}
	query += " ORDER BY transaction_time DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "querying memories")
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "scanning memory row")
		}
		if len(f.Tags) > 0 && !hasAnyTag(m.Tags, f.Tags) {
			continue
		}
		if f.Entity != "" && !hasAnyTag(m.Entities, []string{f.Entity}) {
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func hasAnyTag(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "?"
	}
	return s
}

// versionSnapshotLocked copies the current row for id into memory_versions, keyed
// by (id, transaction_time). Must run under the writer lock as part of a
// mutation that changes content, rationale, context, or tags.
func (s *Store) versionSnapshotLocked(id int64) error {
	m, err := s.GetMemory(id)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO memory_versions (memory_id, transaction_time, content, rationale, context, tags)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.TransactionTime.Format(time.RFC3339Nano), m.Content, m.Rationale, m.Context, marshalStrings(m.Tags))
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "writing version snapshot")
	}
	return nil
}

// Versions returns the version history of a memory in transaction_time order.
func (s *Store) Versions(id int64) ([]*MemoryVersion, error) {
	rows, err := s.db.Query(`
		SELECT memory_id, transaction_time, content, rationale, context, tags
		FROM memory_versions WHERE memory_id = ? ORDER BY transaction_time ASC`, id)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "querying versions")
	}
	defer rows.Close()

	var out []*MemoryVersion
	for rows.Next() {
		var v MemoryVersion
		var txTime, tags string
		if err := rows.Scan(&v.MemoryID, &txTime, &v.Content, &v.Rationale, &v.Context, &tags); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, err, "scanning version row")
		}
		v.TransactionTime, _ = time.Parse(time.RFC3339Nano, txTime)
		v.Tags = unmarshalStrings(tags)
		out = append(out, &v)
	}
	return out, rows.Err()
}

// AtTime returns the version of a memory valid at time t, or errs.NotFound.
func (s *Store) AtTime(id int64, t time.Time) (*MemoryVersion, error) {
	versions, err := s.Versions(id)
	if err != nil {
		return nil, err
	}
	m, err := s.GetMemory(id)
	if err != nil {
		return nil, err
	}
	if m.ValidTime.After(t) {
		return nil, errs.Newf(errs.NotFound, "memory %d did not exist at %s", id, t)
	}
	// versions are ordered ascending by transaction_time; find the last one
	// whose transaction_time <= t, then compare against the current row,
	// since the current row is itself the most recent version and may be
	// more recent than every snapshot while still qualifying (not after t).
	current := &MemoryVersion{
		MemoryID: m.ID, TransactionTime: m.TransactionTime,
		Content: m.Content, Rationale: m.Rationale, Context: m.Context, Tags: m.Tags,
	}
	var best *MemoryVersion
	for _, v := range versions {
		if !v.TransactionTime.After(t) {
			best = v
		}
	}
	if !m.TransactionTime.After(t) {
		if best == nil || !m.TransactionTime.Before(best.TransactionTime) {
			best = current
		}
	} else if best == nil {
		// No snapshot transaction-time qualifies either, but the memory's
		// valid_time check above already passed — this is the only content
		// ever recorded for it, so it is the best available answer.
		best = current
	}
	return best, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
