// Package vectorindex implements approximate nearest-neighbor search over
// memory vectors (spec.md §4.4) on top of the sqlite-vec virtual table
// extension. It opens its own cgo-backed database connection, separate from
// Store's pure-Go modernc.org/sqlite connection, because sqlite-vec's cgo
// bindings only auto-load into a cgo sqlite driver.
package vectorindex

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/daem0nmcp/daem0nmcp/internal/embedder"
	"github.com/daem0nmcp/daem0nmcp/internal/errs"
)

func init() {
	sqlite_vec.Auto()
}

// Index stores (id, vector) pairs and serves cosine-similarity ANN search.
type Index struct {
	db        *sql.DB
	dimension int
	path      string

	// Rebuilt is true when Open found a dimension mismatch and wiped the
	// shard. The caller must then force a full re-embed of every memory in
	// Store — the narrower PendingReindex retry flag alone only covers
	// single memories that failed to embed at write time (spec.md §7), not
	// a shard-wide wipe.
	Rebuilt bool
}

// Open opens (creating if necessary) the vector shard for a project. If the
// configured dimension does not match the table the file was built with, the
// index self-destructs and is rebuilt empty — callers must then repopulate
// it from Store (spec.md §4.4), which they detect via Index.Rebuilt.
func Open(projectPath string, dimension int) (*Index, error) {
	dir := filepath.Join(projectPath, ".daem0nmcp", "vectors")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "creating vectors directory")
	}
	path := filepath.Join(dir, "memories.vec")

	ix, err := openAt(path, dimension)
	if err != nil {
		return nil, err
	}
	if mismatch, err := ix.dimensionMismatch(); err != nil {
		return nil, err
	} else if mismatch {
		ix.db.Close()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, errs.Wrap(errs.StorageFailure, err, "removing stale vector shard")
		}
		ix, err = openAt(path, dimension)
		if err != nil {
			return nil, err
		}
		ix.Rebuilt = true
	}
	return ix, nil
}

func openAt(path string, dimension int) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "opening vector shard")
	}
	db.SetMaxOpenConns(1)

	createTable := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_items USING vec0(embedding float[%d])`, dimension)
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.StorageFailure, err, "creating vector virtual table")
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS vec_meta (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.StorageFailure, err, "creating vector metadata table")
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO vec_meta (key, value) VALUES ('dimension', ?)`,
		fmt.Sprint(dimension)); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.StorageFailure, err, "recording vector dimension")
	}

	return &Index{db: db, dimension: dimension, path: path}, nil
}

func (ix *Index) dimensionMismatch() (bool, error) {
	row := ix.db.QueryRow(`SELECT value FROM vec_meta WHERE key = 'dimension'`)
	var stored string
	if err := row.Scan(&stored); err != nil {
		return false, nil
	}
	return stored != fmt.Sprint(ix.dimension), nil
}

// Close releases the vector shard's database handle.
func (ix *Index) Close() error { return ix.db.Close() }

// Add inserts or replaces the vector for id.
func (ix *Index) Add(id int64, v embedder.Vec) error {
	if len(v) != ix.dimension {
		return errs.Newf(errs.InvalidArgument, "vector dimension %d does not match index dimension %d", len(v), ix.dimension)
	}
	blob, err := sqlite_vec.SerializeFloat32(v)
	if err != nil {
		return errs.Wrap(errs.StorageFailure, err, "serializing vector")
	}
	if _, err := ix.db.Exec(`DELETE FROM vec_items WHERE rowid = ?`, id); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "clearing prior vector")
	}
	if _, err := ix.db.Exec(`INSERT INTO vec_items (rowid, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "inserting vector")
	}
	return nil
}

// Remove deletes the vector for id.
func (ix *Index) Remove(id int64) error {
	if _, err := ix.db.Exec(`DELETE FROM vec_items WHERE rowid = ?`, id); err != nil {
		return errs.Wrap(errs.StorageFailure, err, "removing vector")
	}
	return nil
}

// Get returns the stored vector for id, or errs.NotFound.
func (ix *Index) Get(id int64) (embedder.Vec, error) {
	var blob []byte
	row := ix.db.QueryRow(`SELECT embedding FROM vec_items WHERE rowid = ?`, id)
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.Newf(errs.NotFound, "no vector stored for id %d", id)
		}
		return nil, errs.Wrap(errs.StorageFailure, err, "reading vector")
	}
	return decodeFloat32(blob), nil
}

func decodeFloat32(blob []byte) embedder.Vec {
	out := make(embedder.Vec, len(blob)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// Scored is a single ANN search result; Distance is the L2 (Euclidean)
// distance sqlite-vec reports. Over unit vectors Distance² = 2 − 2·cosine,
// so it is monotonic with (and convertible to) cosine similarity.
type Scored struct {
	ID       int64
	Distance float64
}

// Search returns the topK nearest neighbors of v by cosine similarity.
func (ix *Index) Search(v embedder.Vec, topK int) ([]Scored, error) {
	blob, err := sqlite_vec.SerializeFloat32(v)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, err, "serializing query vector")
	}
	rows, err := ix.db.Query(`
		SELECT rowid, distance FROM vec_items
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance`, blob, topK)
	if err != nil {
		return nil, errs.Wrap(errs.RetrievalFailure, err, "querying vector index")
	}
	defer rows.Close()

	var out []Scored
	for rows.Next() {
		var s Scored
		if err := rows.Scan(&s.ID, &s.Distance); err != nil {
			return nil, errs.Wrap(errs.RetrievalFailure, err, "scanning vector search row")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
