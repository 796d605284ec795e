// Package store persists records and file blobs for the research
// service. Records live in SQLite, one row per (collection, id), with a
// JSON data blob for collection-specific fields. Document bytes and
// serialized indexes live on disk next to the database.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/choislab/hanisearch/internal/logging"
)

var storeLog = logging.ForComponent(logging.CompStore)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// Collection names used throughout the service.
const (
	CollDocuments  = "documents"
	CollRooms      = "rooms"
	CollMessages   = "messages"
	CollSearchLogs = "search_logs"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: record not found")

// Record is one row of a collection. Data carries the
// collection-specific fields as JSON.
type Record struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Data       json.RawMessage `json:"data"`
	FilePath   string          `json:"file_path,omitempty"`
	IsIndexed  bool            `json:"is_indexed"`
	Created    time.Time       `json:"created"`
	Updated    time.Time       `json:"updated"`
}

// Change describes one mutation, delivered to subscribers.
type Change struct {
	Op         string `json:"op"` // "create", "update", "delete"
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// Store wraps the SQLite database plus the blob directory.
// Thread-safe for concurrent use from multiple goroutines within one
// process. Multiple OS processes can safely read/write via WAL mode +
// busy timeout.
type Store struct {
	db      *sql.DB
	dataDir string

	subMu sync.Mutex
	subs  map[chan Change]struct{}
}

// Open creates or opens the store rooted at dataDir. The database file
// and blob directories are created as needed.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "hanisearch.db"))
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: foreign keys: %w", err)
	}

	s := &Store{db: db, dataDir: dataDir, subs: make(map[chan Change]struct{})}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close checkpoints WAL and closes the database.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying sql.DB for advanced use cases (e.g., testing).
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("store: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			data       TEXT NOT NULL DEFAULT '{}',
			file_path  TEXT NOT NULL DEFAULT '',
			index_path TEXT NOT NULL DEFAULT '',
			is_indexed INTEGER NOT NULL DEFAULT 0,
			created    INTEGER NOT NULL,
			updated    INTEGER NOT NULL,
			PRIMARY KEY (collection, id)
		)
	`); err != nil {
		return fmt.Errorf("store: create records: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_records_collection
		ON records (collection, created)
	`); err != nil {
		return fmt.Errorf("store: create collection index: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("store: set schema version: %w", err)
	}

	return tx.Commit()
}

// NewID returns a random 16-hex-char record id.
func NewID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("store: rand: %v", err))
	}
	return hex.EncodeToString(b)
}

// --- Record CRUD ---

// Create inserts a new record and notifies subscribers. A zero ID is
// replaced with a fresh one.
func (s *Store) Create(collection, id, name string, data any) (*Record, error) {
	if id == "" {
		id = NewID()
	}
	blob, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	_, err = s.db.Exec(`
		INSERT INTO records (collection, id, name, data, created, updated)
		VALUES (?, ?, ?, ?, ?, ?)
	`, collection, id, name, string(blob), now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("store: create %s/%s: %w", collection, id, err)
	}

	s.touchAndNotify(Change{Op: "create", Collection: collection, ID: id})
	return &Record{
		Collection: collection, ID: id, Name: name,
		Data: blob, Created: now, Updated: now,
	}, nil
}

// Get fetches one record. Returns ErrNotFound when absent.
func (s *Store) Get(collection, id string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT collection, id, name, data, file_path, is_indexed, created, updated
		FROM records WHERE collection = ? AND id = ?
	`, collection, id)
	return scanRecord(row)
}

// List returns all records of a collection in creation order.
func (s *Store) List(collection string) ([]*Record, error) {
	rows, err := s.db.Query(`
		SELECT collection, id, name, data, file_path, is_indexed, created, updated
		FROM records WHERE collection = ? ORDER BY created
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", collection, err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Update replaces a record's data and bumps its updated timestamp.
func (s *Store) Update(collection, id string, data any) (*Record, error) {
	blob, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	res, err := s.db.Exec(`
		UPDATE records SET data = ?, updated = ?
		WHERE collection = ? AND id = ?
	`, string(blob), time.Now().UnixNano(), collection, id)
	if err != nil {
		return nil, fmt.Errorf("store: update %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	s.touchAndNotify(Change{Op: "update", Collection: collection, ID: id})
	return s.Get(collection, id)
}

// Rename updates a record's display name.
func (s *Store) Rename(collection, id, name string) error {
	res, err := s.db.Exec(`
		UPDATE records SET name = ?, updated = ?
		WHERE collection = ? AND id = ?
	`, name, time.Now().UnixNano(), collection, id)
	if err != nil {
		return fmt.Errorf("store: rename %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.touchAndNotify(Change{Op: "update", Collection: collection, ID: id})
	return nil
}

// Delete removes a record and its blob directory.
func (s *Store) Delete(collection, id string) error {
	res, err := s.db.Exec(
		"DELETE FROM records WHERE collection = ? AND id = ?", collection, id)
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := os.RemoveAll(s.blobDir(collection, id)); err != nil {
		storeLog.Warn("blob cleanup failed", "collection", collection, "id", id, "error", err)
	}
	s.touchAndNotify(Change{Op: "delete", Collection: collection, ID: id})
	return nil
}

func marshalData(data any) (json.RawMessage, error) {
	if data == nil {
		return json.RawMessage("{}"), nil
	}
	if raw, ok := data.(json.RawMessage); ok {
		if len(raw) == 0 {
			return json.RawMessage("{}"), nil
		}
		return raw, nil
	}
	blob, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("store: marshal data: %w", err)
	}
	return blob, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	var data string
	var indexed int
	var created, updated int64
	err := row.Scan(&r.Collection, &r.ID, &r.Name, &data, &r.FilePath, &indexed, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan record: %w", err)
	}
	r.Data = json.RawMessage(data)
	r.IsIndexed = indexed != 0
	r.Created = time.Unix(0, created)
	r.Updated = time.Unix(0, updated)
	return &r, nil
}

// --- File blobs ---

func (s *Store) blobDir(collection, id string) string {
	return filepath.Join(s.dataDir, "files", collection, id)
}

// SaveFile stores the original bytes of a record under the blob
// directory and remembers the path on the record.
func (s *Store) SaveFile(collection, id, filename string, r io.Reader) (string, error) {
	dir := s.blobDir(collection, id)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("store: mkdir blob dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(filename))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("store: create blob: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("store: write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("store: close blob: %w", err)
	}

	if _, err := s.db.Exec(`
		UPDATE records SET file_path = ?, updated = ?
		WHERE collection = ? AND id = ?
	`, path, time.Now().UnixNano(), collection, id); err != nil {
		return "", fmt.Errorf("store: record blob path: %w", err)
	}
	s.touchAndNotify(Change{Op: "update", Collection: collection, ID: id})
	return path, nil
}

// OpenFile opens the stored original bytes of a record.
func (s *Store) OpenFile(collection, id string) (io.ReadCloser, error) {
	r, err := s.Get(collection, id)
	if err != nil {
		return nil, err
	}
	if r.FilePath == "" {
		return nil, fmt.Errorf("store: %s/%s has no file", collection, id)
	}
	return os.Open(r.FilePath)
}

// FileURL returns the serving path for a record's file blob.
func FileURL(r *Record) string {
	if r.FilePath == "" {
		return ""
	}
	return fmt.Sprintf("/files/%s/%s/%s", r.Collection, r.ID, filepath.Base(r.FilePath))
}

// --- Index blobs ---

// SaveIndexBlob stores a serialized inverted index for a document and
// flips its indexed flag.
func (s *Store) SaveIndexBlob(docID string, r io.Reader) error {
	dir := s.blobDir(CollDocuments, docID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("store: mkdir blob dir: %w", err)
	}
	path := filepath.Join(dir, "index.json")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("store: create index blob: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("store: write index blob: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("store: close index blob: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE records SET index_path = ?, is_indexed = 1, updated = ?
		WHERE collection = ? AND id = ?
	`, path, time.Now().UnixNano(), CollDocuments, docID)
	if err != nil {
		return fmt.Errorf("store: record index path: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.touchAndNotify(Change{Op: "update", Collection: CollDocuments, ID: docID})
	return nil
}

// OpenIndexBlob opens a document's serialized index. Returns (nil, nil)
// when the document has no index yet.
func (s *Store) OpenIndexBlob(docID string) (io.ReadCloser, error) {
	var path string
	var indexed int
	err := s.db.QueryRow(`
		SELECT index_path, is_indexed FROM records
		WHERE collection = ? AND id = ?
	`, CollDocuments, docID).Scan(&path, &indexed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: index blob lookup: %w", err)
	}
	if indexed == 0 || path == "" {
		return nil, nil
	}
	return os.Open(path)
}

// DropIndexBlob clears a document's indexed flag and removes the blob.
func (s *Store) DropIndexBlob(docID string) error {
	var path string
	err := s.db.QueryRow(`
		SELECT index_path FROM records WHERE collection = ? AND id = ?
	`, CollDocuments, docID).Scan(&path)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: index blob lookup: %w", err)
	}
	if _, err := s.db.Exec(`
		UPDATE records SET index_path = '', is_indexed = 0, updated = ?
		WHERE collection = ? AND id = ?
	`, time.Now().UnixNano(), CollDocuments, docID); err != nil {
		return fmt.Errorf("store: clear index flag: %w", err)
	}
	if path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			storeLog.Warn("index blob removal failed", "doc", docID, "error", err)
		}
	}
	s.touchAndNotify(Change{Op: "update", Collection: CollDocuments, ID: docID})
	return nil
}

// --- Search logs ---

// SearchLog is the data payload of a search_logs record.
type SearchLog struct {
	Query      string    `json:"query"`
	UsedFiles  []string  `json:"used_files"`
	TotalCount int       `json:"total_count"`
	SearchDate time.Time `json:"search_date"`
}

// AppendSearchLog records one committed search.
func (s *Store) AppendSearchLog(query string, usedFiles []string, totalCount int) error {
	log := SearchLog{
		Query:      query,
		UsedFiles:  usedFiles,
		TotalCount: totalCount,
		SearchDate: time.Now(),
	}
	_, err := s.Create(CollSearchLogs, "", query, log)
	return err
}

// SearchLogs returns all recorded searches, newest first.
func (s *Store) SearchLogs() ([]SearchLog, error) {
	records, err := s.List(CollSearchLogs)
	if err != nil {
		return nil, err
	}
	logs := make([]SearchLog, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		var log SearchLog
		if err := json.Unmarshal(records[i].Data, &log); err != nil {
			return nil, fmt.Errorf("store: decode search log %s: %w", records[i].ID, err)
		}
		logs = append(logs, log)
	}
	return logs, nil
}

// --- Change feed ---

// Subscribe registers a change listener. The returned cancel func must
// be called to release it. Slow subscribers lose changes rather than
// block writers.
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 16)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Store) touchAndNotify(c Change) {
	if err := s.Touch(); err != nil {
		storeLog.Warn("touch failed", "error", err)
	}
	s.subMu.Lock()
	for ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
	s.subMu.Unlock()
}

// --- Metadata ---

// SetMeta sets a key-value pair in the metadata table.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta gets a value from the metadata table. Returns "" if not found.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Touch updates a metadata timestamp that other processes can poll to
// detect changes.
func (s *Store) Touch() error {
	return s.SetMeta("last_modified", fmt.Sprintf("%d", time.Now().UnixNano()))
}

// LastModified returns the last_modified timestamp from metadata.
func (s *Store) LastModified() (int64, error) {
	val, err := s.GetMeta("last_modified")
	if err != nil || val == "" {
		return 0, err
	}
	var ts int64
	_, err = fmt.Sscanf(val, "%d", &ts)
	return ts, err
}
