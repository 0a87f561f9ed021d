package directory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store persists peer records so the directory survives restarts.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenStore opens (or creates) the peer database at basePath/peers.db.
func OpenStore(basePath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", basePath, err)
	}

	dbPath := filepath.Join(basePath, "peers.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS peers (
			uid TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			host TEXT NOT NULL DEFAULT '',
			port INTEGER NOT NULL DEFAULT 0,
			path TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		);
	`)
	return err
}

// LoadPeers returns every persisted peer record.
func (s *Store) LoadPeers() ([]Peer, error) {
	rows, err := s.db.Query(`SELECT uid, name, host, port, path FROM peers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []Peer
	for rows.Next() {
		var p Peer
		if err := rows.Scan(&p.UID, &p.Name, &p.Access.Host, &p.Access.Port, &p.Access.Path); err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

// UpsertPeer inserts or replaces a peer record.
func (s *Store) UpsertPeer(p Peer) error {
	_, err := s.db.Exec(`
		INSERT INTO peers (uid, name, host, port, path, updated_at)
		VALUES (?, ?, ?, ?, ?, strftime('%s','now'))
		ON CONFLICT(uid) DO UPDATE SET
			name = excluded.name,
			host = excluded.host,
			port = excluded.port,
			path = excluded.path,
			updated_at = excluded.updated_at
	`, p.UID, p.Name, p.Access.Host, p.Access.Port, p.Access.Path)
	return err
}

// DeletePeer removes a peer record.
func (s *Store) DeletePeer(uid string) error {
	_, err := s.db.Exec(`DELETE FROM peers WHERE uid = ?`, uid)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
