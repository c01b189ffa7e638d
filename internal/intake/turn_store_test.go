package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresTurnStoreLoadTurns(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"role", "text", "created_at"}).
		AddRow(ChatRoleUser, "Quero agendar avaliação", now.Add(-2*time.Minute)).
		AddRow(ChatRoleAssistant, "Para qual especialidade?", now.Add(-time.Minute)).
		AddRow(ChatRoleUser, "fonoaudiologia", now)

	mock.ExpectQuery(`SELECT role, text, created_at\s+FROM conversation_turns`).
		WithArgs("lead-1").
		WillReturnRows(rows)

	store := NewPostgresTurnStore(db)
	turns, err := store.LoadTurns(context.Background(), "lead-1")
	if err != nil {
		t.Fatalf("LoadTurns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].Role != ChatRoleUser || turns[0].Text != "Quero agendar avaliação" {
		t.Errorf("first turn mismatch: %+v", turns[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresTurnStoreAppendTurn(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	ts := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO conversation_turns`).
		WithArgs("lead-1", ChatRoleUser, "oi", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresTurnStore(db)
	err = store.AppendTurn(context.Background(), "lead-1", Turn{Role: ChatRoleUser, Text: "oi", Timestamp: ts})
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresTurnStoreAppendStampsZeroTimestamp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO conversation_turns`).
		WithArgs("lead-1", ChatRoleAssistant, "resposta", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresTurnStore(db)
	err = store.AppendTurn(context.Background(), "lead-1", Turn{Role: ChatRoleAssistant, Text: "resposta"})
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresTurnStoreLoadError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT role, text, created_at`).
		WithArgs("lead-1").
		WillReturnError(errors.New("connection reset"))

	store := NewPostgresTurnStore(db)
	if _, err := store.LoadTurns(context.Background(), "lead-1"); err == nil {
		t.Fatalf("expected query error to surface")
	}
}

func TestMemoryTurnStoreIsolation(t *testing.T) {
	store := NewMemoryTurnStore()
	ctx := context.Background()

	_ = store.AppendTurn(ctx, "lead-1", Turn{Role: ChatRoleUser, Text: "oi"})

	turns, _ := store.LoadTurns(ctx, "lead-1")
	turns[0].Text = "alterado"

	reloaded, _ := store.LoadTurns(ctx, "lead-1")
	if reloaded[0].Text != "oi" {
		t.Fatalf("LoadTurns must return a copy, got %q", reloaded[0].Text)
	}

	other, _ := store.LoadTurns(ctx, "lead-2")
	if len(other) != 0 {
		t.Fatalf("leads must not share history")
	}
}
