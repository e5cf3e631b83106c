// Package store persists the decision Snapshot in a single SQLite file.
// Loading tolerates a missing file; persisting replaces the file atomically.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	// SQLite driver registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/upc-citation-tracker/internal/decision"
)

var (
	// ErrStorageCorrupt marks a store file that exists but cannot be read.
	ErrStorageCorrupt = errors.New("storage corrupt")
	// ErrStorageWrite marks a failed persist; the previous file is untouched.
	ErrStorageWrite = errors.New("storage write failed")
)

const schemaVersion = "1"

var schema = []string{
	`CREATE TABLE decisions (
		id TEXT PRIMARY KEY NOT NULL,
		date TEXT,
		court TEXT,
		action_type TEXT,
		parties TEXT,
		pdf_url TEXT,
		node TEXT,
		fulltext TEXT,
		decision_reference TEXT,
		content_hash TEXT,
		parse_error TEXT,
		number_citations INTEGER,
		fetched_at TEXT,
		created_at TEXT,
		updated_at TEXT
	)`,
	`CREATE INDEX idx_decision_reference ON decisions(decision_reference)`,
	`CREATE TABLE meta (key TEXT PRIMARY KEY NOT NULL, value TEXT)`,
}

var columns = []string{
	"id", "date", "court", "action_type", "parties", "pdf_url", "node",
	"fulltext", "decision_reference", "content_hash", "parse_error",
	"number_citations", "fetched_at", "created_at", "updated_at",
}

const selectDecisions = `SELECT id, date, court, action_type, parties, pdf_url, node,
	fulltext, decision_reference, content_hash, parse_error, number_citations,
	fetched_at, created_at, updated_at
	FROM decisions ORDER BY id`

// legacyTable is the table written by the first generation of the scraper,
// keyed by registry number with an autoincrement rowid.
const legacyTable = "UPC_decisions"

const selectLegacy = `SELECT number, node, date, court, type_of_action, parties, pdf_url,
	fulltext, decision_reference, number_citations, created_at, updated_at
	FROM UPC_decisions ORDER BY id`

const selectTables = `SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('decisions', 'UPC_decisions')`

// sqliteMagic opens every SQLite 3 database file.
var sqliteMagic = []byte("SQLite format 3\x00")

type row struct {
	ID          string         `db:"id"`
	Date        sql.NullString `db:"date"`
	Court       sql.NullString `db:"court"`
	ActionType  sql.NullString `db:"action_type"`
	Parties     sql.NullString `db:"parties"`
	PDFURL      sql.NullString `db:"pdf_url"`
	Node        sql.NullString `db:"node"`
	FullText    sql.NullString `db:"fulltext"`
	Reference   sql.NullString `db:"decision_reference"`
	ContentHash sql.NullString `db:"content_hash"`
	ParseError  sql.NullString `db:"parse_error"`
	Citations   sql.NullInt64  `db:"number_citations"`
	FetchedAt   sql.NullString `db:"fetched_at"`
	CreatedAt   sql.NullString `db:"created_at"`
	UpdatedAt   sql.NullString `db:"updated_at"`
}

type legacyRow struct {
	Number     sql.NullString `db:"number"`
	Node       sql.NullString `db:"node"`
	Date       sql.NullString `db:"date"`
	Court      sql.NullString `db:"court"`
	ActionType sql.NullString `db:"type_of_action"`
	Parties    sql.NullString `db:"parties"`
	PDFURL     sql.NullString `db:"pdf_url"`
	FullText   sql.NullString `db:"fulltext"`
	Reference  sql.NullString `db:"decision_reference"`
	Citations  sql.NullInt64  `db:"number_citations"`
	CreatedAt  sql.NullString `db:"created_at"`
	UpdatedAt  sql.NullString `db:"updated_at"`
}

// Store reads and writes the decision database at a fixed path.
type Store struct {
	path   string
	open   func(path string) (*sqlx.DB, error)
	logger *zap.Logger
}

// New returns a Store backed by the SQLite file at path.
func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, open: openSQLite, logger: logger}
}

func openSQLite(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads every decision. A missing file yields an empty Snapshot; an
// unreadable one yields an error wrapping ErrStorageCorrupt. A file holding
// only the legacy UPC_decisions table is imported; the next Persist rewrites
// it in the current layout.
func (s *Store) Load(ctx context.Context) (*decision.Snapshot, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return decision.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat store %s: %w", s.path, err)
	}
	if info.IsDir() {
		return nil, corrupt(s.path, errors.New("path is a directory"))
	}
	if err := checkHeader(s.path, info.Size()); err != nil {
		return nil, corrupt(s.path, err)
	}

	db, err := s.open(s.path)
	if err != nil {
		return nil, corrupt(s.path, err)
	}
	defer db.Close() //nolint:errcheck // read-only handle

	var check string
	if err := db.GetContext(ctx, &check, "PRAGMA quick_check"); err != nil {
		return nil, corrupt(s.path, err)
	}
	if check != "ok" {
		return nil, corrupt(s.path, fmt.Errorf("quick_check: %s", check))
	}

	var tables []string
	if err := db.SelectContext(ctx, &tables, selectTables); err != nil {
		return nil, corrupt(s.path, err)
	}
	switch {
	case slices.Contains(tables, "decisions"):
		return s.loadCurrent(ctx, db)
	case slices.Contains(tables, legacyTable):
		return s.loadLegacy(ctx, db)
	default:
		return nil, corrupt(s.path, errors.New("no decisions table"))
	}
}

func (s *Store) loadCurrent(ctx context.Context, db *sqlx.DB) (*decision.Snapshot, error) {
	var rows []row
	if err := db.SelectContext(ctx, &rows, selectDecisions); err != nil {
		return nil, corrupt(s.path, err)
	}
	snap := decision.NewSnapshot()
	for _, r := range rows {
		snap.Upsert(r.decision())
	}
	return snap, nil
}

func (s *Store) loadLegacy(ctx context.Context, db *sqlx.DB) (*decision.Snapshot, error) {
	var rows []legacyRow
	if err := db.SelectContext(ctx, &rows, selectLegacy); err != nil {
		return nil, corrupt(s.path, err)
	}
	snap := decision.NewSnapshot()
	skipped := 0
	for _, r := range rows {
		d, ok := r.decision()
		if !ok {
			skipped++
			continue
		}
		snap.Upsert(d)
	}
	s.logger.Info("legacy store imported",
		zap.String("stage", "load"),
		zap.String("path", s.path),
		zap.String("table", legacyTable),
		zap.Int("decisions", snap.Len()),
		zap.Int("skipped", skipped),
	)
	return snap, nil
}

// LoadOrEmpty is Load that degrades a corrupt file to an empty Snapshot.
// Other errors, such as a canceled context, are returned.
func (s *Store) LoadOrEmpty(ctx context.Context) (*decision.Snapshot, error) {
	snap, err := s.Load(ctx)
	if errors.Is(err, ErrStorageCorrupt) {
		s.logger.Warn("store unreadable, starting from an empty snapshot",
			zap.String("stage", "load"),
			zap.String("path", s.path),
			zap.Error(err),
		)
		return decision.NewSnapshot(), nil
	}
	return snap, err
}

// Upsert applies d to snap; identical records are a no-op returning false.
func (s *Store) Upsert(snap *decision.Snapshot, d decision.Decision) bool {
	return snap.Upsert(d)
}

// Persist writes snap to a temporary file beside the target and renames it
// into place. Every failure wraps ErrStorageWrite and leaves the target as it was.
func (s *Store) Persist(ctx context.Context, snap *decision.Snapshot) (err error) {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".upc-*.db.tmp")
	if err != nil {
		return writeFailure("create temp file", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return writeFailure("close temp file", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
			_ = os.Remove(tmpPath + "-journal")
		}
	}()

	if err := s.write(ctx, tmpPath, snap); err != nil {
		return err
	}
	if err := syncFile(tmpPath); err != nil {
		return writeFailure("sync temp file", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil { // #nosec G302 -- published artifact
		return writeFailure("chmod temp file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return writeFailure("rename into place", err)
	}
	if err := syncFile(dir); err != nil {
		s.logger.Debug("directory sync skipped", zap.String("dir", dir), zap.Error(err))
	}
	s.logger.Info("store persisted",
		zap.String("stage", "persist"),
		zap.String("path", s.path),
		zap.Int("decisions", snap.Len()),
	)
	return nil
}

func (s *Store) write(ctx context.Context, path string, snap *decision.Snapshot) error {
	db, err := s.open(path)
	if err != nil {
		return writeFailure("open temp database", err)
	}
	defer db.Close() //nolint:errcheck // closed explicitly on success

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return writeFailure("create schema", err)
		}
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return writeFailure("begin", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	meta, args, err := sq.Insert("meta").Columns("key", "value").
		Values("schema_version", schemaVersion).ToSql()
	if err != nil {
		return writeFailure("build meta insert", err)
	}
	if _, err := tx.ExecContext(ctx, meta, args...); err != nil {
		return writeFailure("insert meta", err)
	}
	for _, d := range snap.Decisions() {
		query, args, err := sq.Insert("decisions").Columns(columns...).Values(values(d)...).ToSql()
		if err != nil {
			return writeFailure("build insert", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return writeFailure("insert "+d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return writeFailure("commit", err)
	}
	if err := db.Close(); err != nil {
		return writeFailure("close temp database", err)
	}
	return nil
}

func values(d decision.Decision) []any {
	return []any{
		d.ID,
		nullString(d.Date),
		nullString(d.Court),
		nullString(d.ActionType),
		nullString(d.Parties),
		nullString(d.SourceURL),
		nullString(d.Node),
		nullString(d.FullText),
		nullString(d.Reference),
		nullString(d.ContentHash),
		nullString(d.ParseError),
		int64(d.Citations),
		nullTime(d.FetchedAt),
		nullTime(d.CreatedAt),
		nullTime(d.UpdatedAt),
	}
}

func (r row) decision() decision.Decision {
	return decision.Decision{
		ID:          r.ID,
		Date:        r.Date.String,
		Court:       r.Court.String,
		ActionType:  r.ActionType.String,
		Parties:     r.Parties.String,
		SourceURL:   r.PDFURL.String,
		Node:        r.Node.String,
		FullText:    r.FullText.String,
		Reference:   r.Reference.String,
		ContentHash: r.ContentHash.String,
		ParseError:  r.ParseError.String,
		Citations:   int(r.Citations.Int64),
		FetchedAt:   parseTime(r.FetchedAt),
		CreatedAt:   parseTime(r.CreatedAt),
		UpdatedAt:   parseTime(r.UpdatedAt),
	}
}

// decision maps a legacy row; rows with neither a number nor a node have no
// identifier and are dropped.
func (r legacyRow) decision() (decision.Decision, bool) {
	id := decision.Identifier(r.Number.String, r.Node.String)
	if id == "" {
		return decision.Decision{}, false
	}
	return decision.Decision{
		ID:         id,
		Date:       decision.NormalizeDate(r.Date.String),
		Court:      r.Court.String,
		ActionType: r.ActionType.String,
		Parties:    r.Parties.String,
		SourceURL:  r.PDFURL.String,
		Node:       r.Node.String,
		FullText:   r.FullText.String,
		Reference:  r.Reference.String,
		Citations:  int(r.Citations.Int64),
		CreatedAt:  parseTime(r.CreatedAt),
		UpdatedAt:  parseTime(r.UpdatedAt),
	}, true
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// timeLayouts also accepts SQLite CURRENT_TIMESTAMP values.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

func parseTime(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v.String); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// checkHeader rejects files without the SQLite magic and files shorter than
// the page count recorded in their header.
func checkHeader(path string, size int64) error {
	f, err := os.Open(path) // #nosec G304 -- configured store path
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // read-only

	header := make([]byte, 100)
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(header[:len(sqliteMagic)], sqliteMagic) {
		return errors.New("not a sqlite database")
	}
	pageSize := int64(binary.BigEndian.Uint16(header[16:18]))
	if pageSize == 1 {
		pageSize = 65536
	}
	pages := int64(binary.BigEndian.Uint32(header[28:32]))
	// the recorded size is only authoritative when version-valid-for matches the change counter.
	sizeValid := bytes.Equal(header[24:28], header[92:96])
	if sizeValid && pages > 0 && pages*pageSize > size {
		return fmt.Errorf("truncated: header records %d pages of %d bytes, file has %d bytes", pages, pageSize, size)
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path) // #nosec G304 -- temp file or its directory
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func corrupt(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageCorrupt, path, err)
}

func writeFailure(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageWrite, step, err)
}
