// Package store provides the postgres-backed session store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/dc-codes426/newsapi-ai/internal/llm"
	"github.com/dc-codes426/newsapi-ai/internal/session"
)

// Store persists sessions and their turns in postgres. Turns carry a
// per-session sequence number so history order survives round trips.
type Store struct {
	DB  *sql.DB
	ttl time.Duration
}

// NewWithDSN connects to postgres using an explicit DSN.
func NewWithDSN(ctx context.Context, dsn string, ttl time.Duration) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db, ttl: ttl}, nil
}

func (s *Store) GetOrCreate(ctx context.Context, id string) (session.Session, error) {
	if id != "" {
		var sess session.Session
		err := s.DB.QueryRowContext(ctx,
			`SELECT id, created_at FROM sessions WHERE id=$1 AND expires_at > now()`, id).
			Scan(&sess.ID, &sess.CreatedAt)
		switch err {
		case nil:
			if _, err := s.DB.ExecContext(ctx,
				`UPDATE sessions SET expires_at = now() + $2::interval WHERE id=$1`,
				id, intervalArg(s.ttl)); err != nil {
				return session.Session{}, err
			}
			turns, err := s.loadTurns(ctx, id)
			if err != nil {
				return session.Session{}, err
			}
			sess.Turns = turns
			return sess, nil
		case sql.ErrNoRows:
			// expired or unknown, recreate below
		default:
			return session.Session{}, err
		}
	}

	if id == "" {
		id = uuid.NewString()
	}
	sess := session.Session{ID: id, CreatedAt: time.Now().UTC()}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, expires_at) VALUES ($1, $2, now() + $3::interval)
         ON CONFLICT (id) DO UPDATE SET created_at=EXCLUDED.created_at, expires_at=EXCLUDED.expires_at`,
		sess.ID, sess.CreatedAt, intervalArg(s.ttl))
	if err != nil {
		return session.Session{}, err
	}
	// Expired rows that got recreated must not resurrect old turns.
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM turns WHERE session_id=$1`, sess.ID); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

func (s *Store) AppendTurns(ctx context.Context, id string, turns ...session.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id=$1`, id).Scan(&next); err != nil {
		return err
	}
	for i, turn := range turns {
		var calls []byte
		if len(turn.ToolCalls) > 0 {
			calls, err = json.Marshal(turn.ToolCalls)
			if err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, seq, role, content, tool_call_id, tool_calls, created_at)
             VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, next+i, string(turn.Role), turn.Content, turn.ToolCallID, calls, turn.CreatedAt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET expires_at = now() + $2::interval WHERE id=$1`,
		id, intervalArg(s.ttl)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) loadTurns(ctx context.Context, id string) ([]session.Turn, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT role, content, tool_call_id, tool_calls, created_at
         FROM turns WHERE session_id=$1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Turn
	for rows.Next() {
		var t session.Turn
		var role string
		var calls []byte
		if err := rows.Scan(&role, &t.Content, &t.ToolCallID, &calls, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Role = llm.Role(role)
		if len(calls) > 0 {
			if err := json.Unmarshal(calls, &t.ToolCalls); err != nil {
				return nil, fmt.Errorf("corrupt tool calls in session %s: %w", id, err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Sweep deletes sessions past their expiry; turns go with them via
// ON DELETE CASCADE.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) Close() error { return s.DB.Close() }

func intervalArg(ttl time.Duration) string {
	return fmt.Sprintf("%d seconds", int(ttl.Seconds()))
}

// Migrate applies database migrations from the given directory.
// dir example: file://migrations
func Migrate(dir string, dsn string, direction string, steps int) error {
	if dir == "" {
		dir = "file://migrations"
	}
	m, err := migrate.New(dir, dsn)
	if err != nil {
		return err
	}
	switch direction {
	case "up":
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	case "down":
		if steps > 0 {
			return m.Steps(-steps)
		}
		return m.Down()
	default:
		return fmt.Errorf("unknown direction: %s", direction)
	}
}
