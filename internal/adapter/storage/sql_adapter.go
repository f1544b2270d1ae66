package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/port"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Dialect holds what differs between the supported SQL backends.
type Dialect struct {
	Name       string
	Driver     string
	Schema     string
	LockClause string
}

var (
	MySQL = Dialect{
		Name:   "mysql",
		Driver: "mysql",
		Schema: `CREATE TABLE IF NOT EXISTS documents (
			collection VARCHAR(64) NOT NULL,
			id VARCHAR(64) NOT NULL,
			version BIGINT NOT NULL,
			body MEDIUMTEXT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		LockClause: " FOR UPDATE",
	}
	Postgres = Dialect{
		Name:   "postgres",
		Driver: "pgx",
		Schema: `CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			version BIGINT NOT NULL,
			body TEXT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		LockClause: " FOR UPDATE",
	}
	// SQLite serialises writers itself and has no row locks.
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		Schema: `CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			version INTEGER NOT NULL,
			body TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
	}
)

func DialectFor(name string) (Dialect, error) {
	switch name {
	case MySQL.Name:
		return MySQL, nil
	case Postgres.Name:
		return Postgres, nil
	case SQLite.Name:
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
}

// OpenSQL connects and pings the database.
func OpenSQL(ctx context.Context, d Dialect, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", d.Name, err)
	}
	if d.Name == SQLite.Name {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	return db, nil
}

// ChangeFeed carries "collection changed" events between processes.
type ChangeFeed interface {
	Publish(ctx context.Context, c domain.Collection) error
	Listen(ctx context.Context, fn func(domain.Collection)) error
}

type documentRow struct {
	ID        string `db:"id"`
	Version   int64  `db:"version"`
	Body      string `db:"body"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r documentRow) document() port.Document {
	return port.Document{
		ID:        r.ID,
		Version:   r.Version,
		Data:      json.RawMessage(r.Body),
		UpdatedAt: time.Unix(0, r.UpdatedAt).UTC(),
	}
}

// SQLAdapter stores every collection in one documents table. Without a
// feed, snapshots are pushed in-process right after each commit; with a
// feed, commits are published and Run pushes snapshots as events arrive.
type SQLAdapter struct {
	db         *sqlx.DB
	dialect    Dialect
	feed       ChangeFeed
	logger     *zap.Logger
	subs       *subscribers
	dispatchMu sync.Mutex
	now        func() time.Time
}

func NewSQLAdapter(db *sqlx.DB, dialect Dialect, feed ChangeFeed, logger *zap.Logger) *SQLAdapter {
	return &SQLAdapter{
		db:      db,
		dialect: dialect,
		feed:    feed,
		logger:  logger,
		subs:    newSubscribers(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *SQLAdapter) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Schema); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

func (s *SQLAdapter) Get(ctx context.Context, c domain.Collection, id string) (port.Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, version, body, updated_at
		FROM documents WHERE collection = ? AND id = ?`), string(c), id)
	if errors.Is(err, sql.ErrNoRows) {
		return port.Document{}, domain.NotFoundError{Collection: c, ID: id}
	}
	if err != nil {
		return port.Document{}, fmt.Errorf("query %s/%s: %w", c, id, err)
	}
	return row.document(), nil
}

func (s *SQLAdapter) List(ctx context.Context, c domain.Collection) ([]port.Document, error) {
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, version, body, updated_at
		FROM documents WHERE collection = ? ORDER BY id`), string(c))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	docs := make([]port.Document, len(rows))
	for i, r := range rows {
		docs[i] = r.document()
	}
	return docs, nil
}

func (s *SQLAdapter) Write(ctx context.Context, c domain.Collection, id string, data json.RawMessage) error {
	return s.Commit(ctx, port.WriteMutation(c, id, data))
}

func (s *SQLAdapter) Update(ctx context.Context, c domain.Collection, id string, fields map[string]any) error {
	return s.Commit(ctx, port.UpdateMutation(c, id, fields))
}

func (s *SQLAdapter) Delete(ctx context.Context, c domain.Collection, id string) error {
	return s.Commit(ctx, port.DeleteMutation(c, id))
}

type pendingDoc struct {
	original *port.Document
	next     *port.Document
}

func (s *SQLAdapter) Commit(ctx context.Context, mutations ...port.Mutation) error {
	collections, err := s.commitTx(ctx, mutations)
	if err != nil {
		return err
	}
	s.announce(ctx, collections)
	return nil
}

func (s *SQLAdapter) commitTx(ctx context.Context, mutations []port.Mutation) ([]domain.Collection, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	working := make(map[docKey]*pendingDoc)
	var order []docKey
	for _, m := range mutations {
		key := docKey{collection: m.Collection, id: m.ID}
		p, ok := working[key]
		if !ok {
			original, err := s.lockRow(ctx, tx, key)
			if err != nil {
				return nil, err
			}
			p = &pendingDoc{original: original, next: original}
			working[key] = p
			order = append(order, key)
		}
		next, err := resolve(m, p.next, now)
		if err != nil {
			return nil, err
		}
		p.next = next
	}

	seen := make(map[domain.Collection]bool)
	var collections []domain.Collection
	for _, key := range order {
		p := working[key]
		touched, err := s.flush(ctx, tx, key, p)
		if err != nil {
			return nil, err
		}
		if touched && !seen[key.collection] {
			seen[key.collection] = true
			collections = append(collections, key.collection)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return collections, nil
}

func (s *SQLAdapter) lockRow(ctx context.Context, tx *sqlx.Tx, key docKey) (*port.Document, error) {
	var row documentRow
	err := tx.GetContext(ctx, &row, tx.Rebind(`
		SELECT id, version, body, updated_at
		FROM documents WHERE collection = ? AND id = ?`+s.dialect.LockClause), string(key.collection), key.id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s/%s: %w", key.collection, key.id, err)
	}
	doc := row.document()
	return &doc, nil
}

func (s *SQLAdapter) flush(ctx context.Context, tx *sqlx.Tx, key docKey, p *pendingDoc) (bool, error) {
	switch {
	case p.original == nil && p.next == nil:
		return false, nil
	case p.original == nil:
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO documents (collection, id, version, body, updated_at)
			VALUES (?, ?, ?, ?, ?)`),
			string(key.collection), key.id, p.next.Version, string(p.next.Data), p.next.UpdatedAt.UnixNano(),
		)
		if err != nil {
			if isDuplicateKey(err) {
				return false, fmt.Errorf("%w: %s/%s created concurrently", domain.ErrOptimisticLock, key.collection, key.id)
			}
			return false, fmt.Errorf("insert %s/%s: %w", key.collection, key.id, err)
		}
	case p.next == nil:
		result, err := tx.ExecContext(ctx, tx.Rebind(`
			DELETE FROM documents WHERE collection = ? AND id = ? AND version = ?`),
			string(key.collection), key.id, p.original.Version,
		)
		if err != nil {
			return false, fmt.Errorf("delete %s/%s: %w", key.collection, key.id, err)
		}
		if err := expectOneRow(result, key); err != nil {
			return false, err
		}
	default:
		result, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE documents
			SET version = ?, body = ?, updated_at = ?
			WHERE collection = ? AND id = ? AND version = ?`),
			p.next.Version, string(p.next.Data), p.next.UpdatedAt.UnixNano(),
			string(key.collection), key.id, p.original.Version,
		)
		if err != nil {
			return false, fmt.Errorf("update %s/%s: %w", key.collection, key.id, err)
		}
		if err := expectOneRow(result, key); err != nil {
			return false, err
		}
	}
	return true, nil
}

func expectOneRow(result sql.Result, key docKey) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s/%s", domain.ErrOptimisticLock, key.collection, key.id)
	}
	return nil
}

// isDuplicateKey reports a primary key violation from any supported driver.
func isDuplicateKey(err error) bool {
	var (
		me *mysql.MySQLError
		pe *pgconn.PgError
		se *sqlite.Error
	)
	switch {
	case errors.As(err, &me):
		return me.Number == 1062
	case errors.As(err, &pe):
		return pe.Code == "23505"
	case errors.As(err, &se):
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func (s *SQLAdapter) announce(ctx context.Context, collections []domain.Collection) {
	if s.feed == nil {
		for _, c := range collections {
			s.push(ctx, c)
		}
		return
	}
	for _, c := range collections {
		if err := s.feed.Publish(ctx, c); err != nil {
			s.logger.Error("failed to publish change", zap.String("collection", string(c)), zap.Error(err))
		}
	}
}

// push reloads the collection and hands the snapshot to its subscribers.
func (s *SQLAdapter) push(ctx context.Context, c domain.Collection) {
	if !s.subs.watching(c) {
		return
	}
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	docs, err := s.List(ctx, c)
	if err != nil {
		s.logger.Error("failed to reload collection", zap.String("collection", string(c)), zap.Error(err))
		return
	}
	s.subs.notify(port.Snapshot{Collection: c, Documents: docs})
}

func (s *SQLAdapter) Subscribe(ctx context.Context, c domain.Collection, fn port.SnapshotFunc) (func(), error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	docs, err := s.List(ctx, c)
	if err != nil {
		return nil, err
	}
	id := s.subs.add(c, fn)
	fn(port.Snapshot{Collection: c, Documents: docs})
	return func() { s.subs.remove(c, id) }, nil
}

// Run consumes the change feed until ctx is cancelled. It is a no-op when
// the adapter has no feed.
func (s *SQLAdapter) Run(ctx context.Context) error {
	if s.feed == nil {
		<-ctx.Done()
		return nil
	}
	s.logger.Info("listening for document changes", zap.String("dialect", s.dialect.Name))
	return s.feed.Listen(ctx, func(c domain.Collection) {
		s.push(ctx, c)
	})
}

// DB exposes the underlying handle for tests.
func (s *SQLAdapter) DB() *sqlx.DB { return s.db }

