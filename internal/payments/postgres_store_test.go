package payments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB is an in-memory stand-in for a pgx pool holding one payments table.
type fakeDB struct {
	mu        sync.Mutex
	rows      map[string]bool
	execs     []string
	insertErr error
	beginErr  error
	commits   int
}

func newFakeDB() *fakeDB { return &fakeDB{rows: map[string]bool{}} }

func rowKey(args []any) string { return args[0].(string) + "|" + args[1].(string) }

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeRow{found: f.rows[rowKey(args)]}
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &fakeTx{db: f}, nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, nil
}

// fakeTx embeds pgx.Tx so only the methods the store calls need bodies.
type fakeTx struct {
	pgx.Tx
	db      *fakeDB
	pending string
}

func (tx *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return tx.db.QueryRow(ctx, sql, args...)
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx.db.insertErr != nil {
		return pgconn.CommandTag{}, tx.db.insertErr
	}
	tx.pending = rowKey(args)
	return pgconn.CommandTag{}, nil
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	if tx.pending != "" {
		if tx.db.rows[tx.pending] {
			return &pgconn.PgError{Code: uniqueViolation}
		}
		tx.db.rows[tx.pending] = true
	}
	tx.db.commits++
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeRow struct {
	found bool
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*bool)) = r.found
	return nil
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	db := newFakeDB()
	store := NewPostgresStore(db, "payments")

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0], `CREATE TABLE IF NOT EXISTS "payments"`) {
		t.Fatalf("unexpected ddl: %v", db.execs)
	}
	if !strings.Contains(db.execs[0], "UNIQUE (token_key, pay_day)") {
		t.Fatalf("ddl missing unique constraint")
	}
}

func TestPostgresStore_InsertThenDuplicate(t *testing.T) {
	db := newFakeDB()
	store := NewPostgresStore(db, "payments")
	ctx := context.Background()
	rec := sampleRecord(t)

	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	found, err := store.Exists(ctx, rec.TokenKey, rec.PayDay)
	if err != nil || !found {
		t.Fatalf("expected found, got %v %v", found, err)
	}

	if err := store.Insert(ctx, rec); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if db.commits != 1 {
		t.Fatalf("expected one commit, got %d", db.commits)
	}
}

func TestPostgresStore_UniqueViolationMapsToDuplicate(t *testing.T) {
	db := newFakeDB()
	db.insertErr = &pgconn.PgError{Code: "23505", ConstraintName: "payments_token_key_pay_day_key"}
	store := NewPostgresStore(db, "payments")

	if err := store.Insert(context.Background(), sampleRecord(t)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestPostgresStore_OtherErrorsAreWrapped(t *testing.T) {
	db := newFakeDB()
	db.insertErr = &pgconn.PgError{Code: "53300", Message: "too many connections"}
	store := NewPostgresStore(db, "payments")

	err := store.Insert(context.Background(), sampleRecord(t))
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected non-duplicate error, got %v", err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "53300" {
		t.Fatalf("expected wrapped PgError, got %v", err)
	}

	db.insertErr = nil
	db.beginErr = errors.New("connection refused")
	if err := store.Insert(context.Background(), sampleRecord(t)); err == nil {
		t.Fatal("expected begin error")
	}
}
