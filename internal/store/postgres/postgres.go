// Package postgres implements store.Store on a single jsonb documents table.
// Field merges happen inside a row-locked transaction, and Watch rides the
// LISTEN/NOTIFY channel fed by a table trigger (see migrations).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/RobinAyzit/share-plans-done-together/internal/store"
)

// notifyChannel must match the pg_notify channel used by the table trigger.
const notifyChannel = "documents_changed"

// Store wraps the database connection and the DSN needed for listeners.
type Store struct {
	db     *sql.DB
	dsn    string
	logger *logrus.Logger
}

// New opens a connection pool and pings the database.
func New(databaseURL string, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established successfully")
	return &Store{db: db, dsn: databaseURL, logger: logger}, nil
}

// Migrate runs database migrations from the given directory.
func (s *Store) Migrate(migrationsPath string) error {
	driver, err := migratepg.WithInstance(s.db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	s.logger.Info("Database migrations completed successfully")
	return nil
}

func (s *Store) Get(ctx context.Context, col, id string, out any) error {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2`,
		col, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s/%s: %w", col, id, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", col, id, err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, col, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", col, id, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, doc, updated_at) VALUES ($1, $2, $3, now())`,
		col, id, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s/%s: %w", col, id, err)
	}
	return nil
}

// Set reads the row under FOR UPDATE, merges the field map in Go, and writes
// the document back. The row lock only serializes writers on the same
// backend; two application instances still race at read-modify-write
// granularity for array fields, matching the document-level
// last-writer-wins contract.
func (s *Store) Set(ctx context.Context, col, id string, fields map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		col, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock %s/%s: %w", col, id, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", col, id, err)
	}
	if err := store.ApplyFields(doc, fields); err != nil {
		return fmt.Errorf("failed to merge fields into %s/%s: %w", col, id, err)
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", col, id, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET doc = $3, updated_at = now() WHERE collection = $1 AND id = $2`,
		col, id, merged,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", col, id, err)
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, col, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		col, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", col, id, err)
	}
	return nil
}

func (s *Store) Find(ctx context.Context, col string, filter store.Filter, out any) error {
	query := `SELECT doc FROM documents WHERE collection = $1`
	args := []any{col}
	argIdx := 2

	if filter.ID != "" {
		query += fmt.Sprintf(" AND id = $%d", argIdx)
		args = append(args, filter.ID)
		argIdx++
	}
	for path, val := range filter.Eq {
		query += fmt.Sprintf(" AND doc #>> $%d = $%d", argIdx, argIdx+1)
		args = append(args, pq.Array(strings.Split(path, ".")), fmt.Sprint(val))
		argIdx += 2
	}
	for _, path := range filter.Exists {
		query += fmt.Sprintf(" AND doc #> $%d IS NOT NULL AND doc #> $%d <> 'null'::jsonb", argIdx, argIdx)
		args = append(args, pq.Array(strings.Split(path, ".")))
		argIdx++
	}
	query += ` ORDER BY updated_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", col, err)
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("failed to scan %s row: %w", col, err)
		}
		docs = append(docs, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read %s rows: %w", col, err)
	}

	combined, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("failed to combine %s results: %w", col, err)
	}
	if err := json.Unmarshal(combined, out); err != nil {
		return fmt.Errorf("failed to decode %s results: %w", col, err)
	}
	return nil
}

// Watch listens on the trigger's notify channel. Field-level filters are
// evaluated in Go after re-reading the changed document; delete events match
// on id only, since the document body is gone.
func (s *Store) Watch(ctx context.Context, col string, filter store.Filter) (<-chan store.Event, error) {
	listener := pq.NewListener(s.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.logger.WithError(err).Warn("postgres listener event")
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", notifyChannel, err)
	}

	ch := make(chan store.Event, 16)
	go func() {
		defer close(ch)
		defer listener.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				if n == nil {
					// Connection reset; the listener reconnects on its own.
					continue
				}
				ev, ok := s.decodeNotification(ctx, col, filter, n.Extra)
				if !ok {
					continue
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			case <-time.After(90 * time.Second):
				if err := listener.Ping(); err != nil {
					s.logger.WithError(err).Warn("postgres listener ping failed")
				}
			}
		}
	}()

	return ch, nil
}

func (s *Store) decodeNotification(ctx context.Context, col string, filter store.Filter, payload string) (store.Event, bool) {
	var n struct {
		Collection string `json:"collection"`
		ID         string `json:"id"`
		Op         string `json:"op"`
	}
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		s.logger.WithError(err).Warn("failed to decode notify payload")
		return store.Event{}, false
	}
	if n.Collection != col {
		return store.Event{}, false
	}
	if filter.ID != "" && filter.ID != n.ID {
		return store.Event{}, false
	}

	ev := store.Event{Collection: col, ID: n.ID, Deleted: n.Op == "DELETE"}
	if ev.Deleted || (len(filter.Eq) == 0 && len(filter.Exists) == 0) {
		return ev, true
	}

	var doc map[string]any
	if err := s.Get(ctx, col, n.ID, &doc); err != nil {
		// Deleted or unreadable between notify and read; skip.
		return store.Event{}, false
	}
	if !store.MatchFilter(n.ID, doc, filter) {
		return store.Event{}, false
	}
	return ev, true
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}
