// Package store provides SQLite-backed storage for asset documents.
package store

import (
	"bytes"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"

	"assetgraph/asset"
	"assetgraph/yamlasset"
)

//go:embed schema.sql
var schemaSQL string

var (
	ErrNotFound      = errors.New("asset not found")
	ErrLocationInUse = errors.New("location used by another asset")
)

// Options tune an opened store. Zero values select the defaults.
type Options struct {
	// BusyTimeout is how long to wait on a locked database. Default 5s.
	BusyTimeout time.Duration
	// CompressionLevel is the zstd encoder level, 1 (fastest) to 4 (best).
	CompressionLevel int
}

// Entry describes a stored asset without decoding it.
type Entry struct {
	ID        uuid.UUID
	Location  string
	Type      string
	Archetype uuid.UUID
	Digest    []byte
	Size      int64
	UpdatedAt int64
}

// DB wraps a SQLite connection holding zstd-compressed asset documents.
type DB struct {
	conn *sql.DB
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// Open opens or creates the store at the given path.
func Open(dbPath string, opts Options) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	timeout := opts.BusyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeout.Milliseconds()))

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	level := zstd.SpeedDefault
	if opts.CompressionLevel > 0 {
		level = zstd.EncoderLevel(min(opts.CompressionLevel, int(zstd.SpeedBestCompression)))
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		conn.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &DB{conn: conn, enc: enc, dec: dec}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.dec.Close()
	if err := db.enc.Close(); err != nil {
		db.conn.Close()
		return err
	}
	return db.conn.Close()
}

// Put stores an asset, replacing the previous version with the same id. It
// reports whether the stored document changed.
func (db *DB) Put(a *asset.Asset) (bool, error) {
	data, err := yamlasset.Encode(a)
	if err != nil {
		return false, err
	}
	sum := blake3.Sum256(data)

	tx, err := db.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRow(`SELECT id FROM assets WHERE location = ?`, a.Location).Scan(&owner)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("querying location: %w", err)
	}
	if err == nil && owner != a.ID.String() {
		return false, fmt.Errorf("put %s: %w", a.Location, ErrLocationInUse)
	}

	var digest []byte
	err = tx.QueryRow(`SELECT digest FROM assets WHERE id = ?`, a.ID.String()).Scan(&digest)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("querying asset: %w", err)
	}
	if err == nil && bytes.Equal(digest, sum[:]) {
		return false, nil
	}

	archetype := ""
	if a.Archetype != nil {
		archetype = a.Archetype.ID.String()
	}
	_, err = tx.Exec(
		`INSERT INTO assets (id, location, type, archetype, digest, size, body, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   location = excluded.location,
		   type = excluded.type,
		   archetype = excluded.archetype,
		   digest = excluded.digest,
		   size = excluded.size,
		   body = excluded.body,
		   updated_at = excluded.updated_at`,
		a.ID.String(), a.Location, a.Type(), archetype, sum[:], len(data),
		db.enc.EncodeAll(data, nil), time.Now().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("storing asset: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// Get loads the asset with the given id.
func (db *DB) Get(id uuid.UUID) (*asset.Asset, error) {
	return db.load(`SELECT body FROM assets WHERE id = ?`, id.String())
}

// GetByLocation loads the asset stored at location.
func (db *DB) GetByLocation(location string) (*asset.Asset, error) {
	return db.load(`SELECT body FROM assets WHERE location = ?`, location)
}

func (db *DB) load(query string, arg any) (*asset.Asset, error) {
	var body []byte
	err := db.conn.QueryRow(query, arg).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%v: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying asset: %w", err)
	}
	data, err := db.dec.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing asset %v: %w", arg, err)
	}
	return yamlasset.Decode(data)
}

// List returns the stored assets whose location matches a doublestar
// pattern, ordered by location. An empty pattern matches everything.
func (db *DB) List(pattern string) ([]Entry, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}
	rows, err := db.conn.Query(
		`SELECT id, location, type, archetype, digest, size, updated_at FROM assets ORDER BY location`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying assets: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var id, archetype string
		if err := rows.Scan(&id, &e.Location, &e.Type, &archetype, &e.Digest, &e.Size, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		if pattern != "" {
			if ok, _ := doublestar.Match(pattern, e.Location); !ok {
				continue
			}
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("asset %s: %w", e.Location, err)
		}
		if archetype != "" {
			if e.Archetype, err = uuid.Parse(archetype); err != nil {
				return nil, fmt.Errorf("asset %s: archetype: %w", e.Location, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Derived returns the ids of the assets whose archetype is id.
func (db *DB) Derived(id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := db.conn.Query(`SELECT id FROM assets WHERE archetype = ? ORDER BY location`, id.String())
	if err != nil {
		return nil, fmt.Errorf("querying derived assets: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, u)
	}
	return ids, rows.Err()
}

// Delete removes the asset with the given id.
func (db *DB) Delete(id uuid.UUID) error {
	res, err := db.conn.Exec(`DELETE FROM assets WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("deleting asset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}
