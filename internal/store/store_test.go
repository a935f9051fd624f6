package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/dc-codes426/newsapi-ai/internal/llm"
	"github.com/dc-codes426/newsapi-ai/internal/session"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db, ttl: 30 * time.Minute}, mock
}

func TestGetOrCreateExistingSession(t *testing.T) {
	st, mock := newMockStore(t)

	created := time.Now().Add(-time.Minute)
	mock.ExpectQuery(`SELECT id, created_at FROM sessions`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("s1", created))
	mock.ExpectExec(`UPDATE sessions SET expires_at`).
		WithArgs("s1", "1800 seconds").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT role, content, tool_call_id, tool_calls, created_at`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"role", "content", "tool_call_id", "tool_calls", "created_at"}).
			AddRow("user", "hello", "", nil, created).
			AddRow("assistant", "hi there", "", nil, created))

	sess, err := st.GetOrCreate(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sess.ID != "s1" || len(sess.Turns) != 2 {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if sess.Turns[1].Role != llm.RoleAssistant {
		t.Fatalf("turn order lost: %+v", sess.Turns)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetOrCreateUnknownIDCreates(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, created_at FROM sessions`).
		WithArgs("fresh").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))
	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs("fresh", sqlmock.AnyArg(), "1800 seconds").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM turns WHERE session_id`).
		WithArgs("fresh").
		WillReturnResult(sqlmock.NewResult(0, 0))

	sess, err := st.GetOrCreate(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sess.ID != "fresh" || len(sess.Turns) != 0 {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendTurnsSequencesAndRefreshes(t *testing.T) {
	st, mock := newMockStore(t)

	turns := []session.Turn{
		session.FromMessage(llm.Message{Role: llm.RoleUser, Content: "question"}),
		session.FromMessage(llm.Message{Role: llm.RoleAssistant, Content: "answer"}),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq\), 0\) \+ 1 FROM turns`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec(`INSERT INTO turns`).
		WithArgs("s1", 3, "user", "question", "", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO turns`).
		WithArgs("s1", 4, "assistant", "answer", "", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE sessions SET expires_at`).
		WithArgs("s1", "1800 seconds").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := st.AppendTurns(context.Background(), "s1", turns...); err != nil {
		t.Fatalf("AppendTurns: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSweepCountsDeleted(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM sessions WHERE expires_at`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	removed, err := st.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 4 {
		t.Fatalf("expected 4 removed, got %d", removed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
