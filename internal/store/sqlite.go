package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "notifyd/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// opTimeout bounds each statement. The engine treats the store as a fast
// local call, so a stuck database surfaces as an error instead of a hang.
const opTimeout = 5 * time.Second

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

func (s *sqliteStore) Get(key string) (string, bool, error) {
	if s.db == nil {
		return "", false, ErrClosed
	}
	ctx, cancel := s.ctx()
	defer cancel()
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM properties WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *sqliteStore) Set(key, value string) error {
	return s.SetMany(map[string]string{key: value})
}

func (s *sqliteStore) SetMany(props map[string]string) error {
	if s.db == nil {
		return ErrClosed
	}
	if len(props) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO properties(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for k, v := range props {
		if _, err := stmt.ExecContext(ctx, k, v); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) RemovePrefix(prefix string) error {
	if s.db == nil {
		return ErrClosed
	}
	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM properties WHERE key = ? OR key LIKE ? ESCAPE '\'`,
		prefix, likeChildren(prefix))
	return err
}

func (s *sqliteStore) Keys(prefix string, exactLevel bool) ([]string, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	ctx, cancel := s.ctx()
	defer cancel()

	var (
		rows *sql.Rows
		err  error
	)
	if prefix == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT key FROM properties ORDER BY key`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT key FROM properties WHERE key LIKE ? ESCAPE '\' ORDER BY key`, likeChildren(prefix))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0, 8)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		// LIKE is case-insensitive for ASCII; matchKey restores exact semantics.
		if matchKey(k, prefix, exactLevel) {
			out = append(out, k)
		}
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// likeChildren builds a LIKE pattern matching every key below prefix.
func likeChildren(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + ".%"
}
