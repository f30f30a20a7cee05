// Package capturestore persists raw flux captures in a SQLite
// database keyed by (track, side), so a capture session and its later
// decode pass can run as two separate steps: capture once to disk,
// then decode (and redecode, after tuning a format parameter) as many
// times as needed without re-reading the physical disk.
package capturestore

import (
	"bytes"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fluxengine/fluxcore/flux"
)

const schema = `
CREATE TABLE IF NOT EXISTS flux (
	track INTEGER NOT NULL,
	side  INTEGER NOT NULL,
	data  BLOB NOT NULL,
	PRIMARY KEY (track, side)
);`

// Store wraps a SQLite-backed flux capture cache. All writes within a
// Store's lifetime share one transaction, committed on Close; this
// mirrors a single capture session writing many tracks before the
// file is considered durable.
type Store struct {
	db *sql.DB
	tx *sql.Tx
}

// Open creates (if necessary) and opens the capture database at path,
// beginning a write transaction that spans every Put until Close.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("capturestore: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("capturestore: create schema: %w", err)
	}
	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("capturestore: begin transaction: %w", err)
	}
	return &Store{db: db, tx: tx}, nil
}

// Put stores the encoded wire form of fm under (track, side),
// replacing any previous capture for that coordinate.
func (s *Store) Put(track, side int, fm *flux.Fluxmap) error {
	var buf bytes.Buffer
	if err := flux.EncodeWire(&buf, fm); err != nil {
		return fmt.Errorf("capturestore: encode track %d side %d: %w", track, side, err)
	}
	_, err := s.tx.Exec(
		`INSERT INTO flux (track, side, data) VALUES (?, ?, ?)
		 ON CONFLICT(track, side) DO UPDATE SET data = excluded.data`,
		track, side, buf.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("capturestore: put track %d side %d: %w", track, side, err)
	}
	return nil
}

// Get retrieves the capture for (track, side), reporting ok=false if
// no capture has ever been stored for that coordinate. Reads see the
// store's own uncommitted writes, since they run against the same
// open transaction.
func (s *Store) Get(track, side int) (fm *flux.Fluxmap, ok bool, err error) {
	row := s.tx.QueryRow(`SELECT data FROM flux WHERE track = ? AND side = ?`, track, side)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("capturestore: get track %d side %d: %w", track, side, err)
	}
	fm, err = flux.DecodeWire(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("capturestore: decode track %d side %d: %w", track, side, err)
	}
	return fm, true, nil
}

// Close commits the pending transaction and closes the database.
func (s *Store) Close() error {
	if err := s.tx.Commit(); err != nil {
		s.db.Close()
		return fmt.Errorf("capturestore: commit: %w", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("capturestore: close: %w", err)
	}
	return nil
}
