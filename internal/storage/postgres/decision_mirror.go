// Package postgres mirrors the decision table into a PostgreSQL database so
// downstream consumers can query it without reading the SQLite artifact.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/upc-citation-tracker/internal/decision"
)

var validTableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Config captures the settings required to reach Postgres.
type Config struct {
	DSN      string
	Table    string
	MaxConns int32
}

// Pool is the subset of pgxpool.Pool used by the mirror.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// DecisionMirror upserts decision rows into a Postgres table.
type DecisionMirror struct {
	pool  Pool
	table string
	psql  sq.StatementBuilderType
}

// NewDecisionMirror opens a pgx pool using cfg.
func NewDecisionMirror(ctx context.Context, cfg Config) (*DecisionMirror, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	mirror, err := NewDecisionMirrorWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return mirror, nil
}

// NewDecisionMirrorWithPool wraps an existing pool.
func NewDecisionMirrorWithPool(pool Pool, table string) (*DecisionMirror, error) {
	if pool == nil {
		return nil, errors.New("postgres pool is required")
	}
	if table == "" {
		table = "upc_decisions"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &DecisionMirror{
		pool:  pool,
		table: table,
		psql:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close releases the pool.
func (m *DecisionMirror) Close() {
	m.pool.Close()
}

// EnsureSchema creates the mirror table when it does not exist.
func (m *DecisionMirror) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	decision_date TEXT,
	court TEXT,
	action_type TEXT,
	parties TEXT,
	source_url TEXT,
	node TEXT,
	reference TEXT,
	content_hash TEXT,
	parse_error TEXT,
	citations INTEGER NOT NULL DEFAULT 0,
	fetched_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ
)`, m.table)
	if _, err := m.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure %s: %w", m.table, err)
	}
	return nil
}

// UpsertDecisions writes every decision in one transaction and returns the
// number of rows written. Full text is not mirrored.
func (m *DecisionMirror) UpsertDecisions(ctx context.Context, decisions []decision.Decision) (written int, err error) {
	if len(decisions) == 0 {
		return 0, nil
	}
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	for _, d := range decisions {
		query, args, buildErr := m.upsertQuery(d)
		if buildErr != nil {
			return written, fmt.Errorf("build upsert %s: %w", d.ID, buildErr)
		}
		if _, execErr := tx.Exec(ctx, query, args...); execErr != nil {
			return written, fmt.Errorf("upsert %s: %w", d.ID, execErr)
		}
		written++
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

func (m *DecisionMirror) upsertQuery(d decision.Decision) (string, []any, error) {
	return m.psql.Insert(m.table).
		Columns(
			"id", "decision_date", "court", "action_type", "parties", "source_url", "node",
			"reference", "content_hash", "parse_error", "citations",
			"fetched_at", "created_at", "updated_at",
		).
		Values(
			d.ID, d.Date, d.Court, d.ActionType, d.Parties, d.SourceURL, d.Node,
			d.Reference, d.ContentHash, d.ParseError, d.Citations,
			nullTime(d.FetchedAt), nullTime(d.CreatedAt), nullTime(d.UpdatedAt),
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
	decision_date = EXCLUDED.decision_date,
	court = EXCLUDED.court,
	action_type = EXCLUDED.action_type,
	parties = EXCLUDED.parties,
	source_url = EXCLUDED.source_url,
	node = EXCLUDED.node,
	reference = EXCLUDED.reference,
	content_hash = EXCLUDED.content_hash,
	parse_error = EXCLUDED.parse_error,
	citations = EXCLUDED.citations,
	fetched_at = EXCLUDED.fetched_at,
	updated_at = EXCLUDED.updated_at`).
		ToSql()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
