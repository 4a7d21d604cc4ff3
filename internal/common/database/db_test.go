package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// recordingTx is a transaction double. Methods it does not override panic
// through the nil embedded interface.
type recordingTx struct {
	pgx.Tx
	savepoints []*recordingTx
	statements []string
	committed  bool
	rolledBack bool
}

func (t *recordingTx) Begin(context.Context) (pgx.Tx, error) {
	sp := &recordingTx{}
	t.savepoints = append(t.savepoints, sp)
	return sp, nil
}

func (t *recordingTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *recordingTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

func (t *recordingTx) Exec(_ context.Context, sql string, _ ...interface{}) (pgconn.CommandTag, error) {
	t.statements = append(t.statements, sql)
	return pgconn.CommandTag{}, nil
}

func (t *recordingTx) QueryRow(_ context.Context, sql string, _ ...interface{}) pgx.Row {
	t.statements = append(t.statements, sql)
	return noRow{}
}

type noRow struct{}

func (noRow) Scan(...interface{}) error { return pgx.ErrNoRows }

// newPoolless returns a DB without a pool, so any query that escapes the
// context transaction panics.
func newPoolless() *DB {
	return &DB{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestQueriesRunOnContextTransaction(t *testing.T) {
	t.Parallel()

	db := newPoolless()
	outer := &recordingTx{}
	ctx := ContextWithTx(context.Background(), outer)

	if err := db.QueryRow(ctx, "SELECT 1").Scan(); !IsNotFound(err) {
		t.Fatalf("scan err = %v", err)
	}
	if _, err := db.Exec(ctx, "UPDATE x"); err != nil {
		t.Fatal(err)
	}
	if len(outer.statements) != 2 {
		t.Fatalf("statements on outer tx = %v", outer.statements)
	}

	if got, ok := TxFromContext(ctx); !ok || got != outer {
		t.Fatal("TxFromContext did not return the attached transaction")
	}
	if _, ok := TxFromContext(context.Background()); ok {
		t.Fatal("TxFromContext found a transaction on a bare context")
	}
}

func TestWithTxJoinsContextTransaction(t *testing.T) {
	t.Parallel()

	db := newPoolless()
	outer := &recordingTx{}
	ctx := ContextWithTx(context.Background(), outer)

	err := db.WithAdvisoryLock(ctx, "withdrawal:aff-1", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "INSERT 1")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(outer.savepoints) != 1 {
		t.Fatalf("savepoints = %d, want 1", len(outer.savepoints))
	}
	sp := outer.savepoints[0]
	if !sp.committed || sp.rolledBack || len(sp.statements) != 2 {
		t.Fatalf("savepoint = %+v", sp)
	}
	if outer.committed || outer.rolledBack {
		t.Fatal("joined call finished the outer transaction")
	}

	boom := errors.New("insufficient")
	err = db.WithTx(ctx, func(tx pgx.Tx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	sp = outer.savepoints[1]
	if !sp.rolledBack || sp.committed {
		t.Fatalf("failed savepoint = %+v", sp)
	}
	if outer.rolledBack {
		t.Fatal("failed savepoint rolled back the outer transaction")
	}
}
