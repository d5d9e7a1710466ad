// Package storage persists the lottery journal in a SQLite database.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/luca-patrignani/mental-lottery/ledger"

	_ "modernc.org/sqlite"
)

const (
	defaultDBFile    = "lottery.db"
	maxBusyTimeoutMs = 5000
)

var ErrClosed = errors.New("store is closed")

// Store keeps journal blocks in a SQLite database file. It implements
// ledger.Persister.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	file string
}

// Open opens, or creates, the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = defaultDBFile
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", filepath.Clean(absPath)))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", maxBusyTimeoutMs)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db, file: absPath}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS blocks (
	idx       INTEGER PRIMARY KEY,
	ts        INTEGER NOT NULL,
	prev_hash TEXT NOT NULL,
	hash      TEXT NOT NULL UNIQUE,
	event     TEXT NOT NULL,
	metadata  TEXT NOT NULL
);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Path returns the absolute path of the database file.
func (s *Store) Path() string {
	return s.file
}

// SaveBlock inserts b. Blocks are immutable: saving an index twice fails.
func (s *Store) SaveBlock(b ledger.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	event, err := json.Marshal(b.Event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	meta, err := json.Marshal(b.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO blocks (idx, ts, prev_hash, hash, event, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		b.Index, b.Timestamp, b.PrevHash, b.Hash, string(event), string(meta),
	)
	if err != nil {
		return fmt.Errorf("insert block %d: %w", b.Index, err)
	}
	return nil
}

// LoadBlocks returns every stored block ordered by index.
func (s *Store) LoadBlocks() ([]ledger.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(`SELECT idx, ts, prev_hash, hash, event, metadata FROM blocks ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []ledger.Block
	for rows.Next() {
		var (
			b           ledger.Block
			event, meta string
		)
		if err := rows.Scan(&b.Index, &b.Timestamp, &b.PrevHash, &b.Hash, &event, &meta); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		if err := json.Unmarshal([]byte(event), &b.Event); err != nil {
			return nil, fmt.Errorf("decode event of block %d: %w", b.Index, err)
		}
		if err := json.Unmarshal([]byte(meta), &b.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of block %d: %w", b.Index, err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return blocks, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
