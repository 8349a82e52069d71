package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// rowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgxConn is the part of *pgxpool.Pool the store needs.
type pgxConn interface {
	rowQuerier
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps payments in a Postgres table with UNIQUE (token_key, pay_day).
type PostgresStore struct {
	db    pgxConn
	table string
}

// NewPostgresStore returns a store over table. Pass a *pgxpool.Pool.
func NewPostgresStore(db pgxConn, table string) *PostgresStore {
	return &PostgresStore{db: db, table: pgx.Identifier{table}.Sanitize()}
}

// EnsureSchema creates the payments table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id              BIGSERIAL PRIMARY KEY,
	token_key       TEXT        NOT NULL,
	pay_day         DATE        NOT NULL,
	api_id          TEXT        NOT NULL,
	mobile          TEXT,
	bank_code       TEXT        NOT NULL,
	account_no      TEXT        NOT NULL,
	pay_date        TEXT        NOT NULL,
	additional_data TEXT,
	debit_amount    BIGINT      NOT NULL,
	real_amount     BIGINT      NOT NULL,
	resp_code       TEXT        NOT NULL,
	resp_desc       TEXT        NOT NULL,
	trace_transfer  TEXT        NOT NULL,
	message_type    TEXT        NOT NULL,
	order_code      TEXT        NOT NULL,
	promotion_code  TEXT,
	add_value       TEXT,
	check_sum       TEXT        NOT NULL,
	user_name       TEXT        NOT NULL,
	status          TEXT        NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	UNIQUE (token_key, pay_day)
)`, s.table)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, tokenKey, payDay string) (bool, error) {
	return s.exists(ctx, s.db, tokenKey, payDay)
}

func (s *PostgresStore) exists(ctx context.Context, q rowQuerier, tokenKey, payDay string) (bool, error) {
	var found bool
	sql := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE token_key = $1 AND pay_day = $2::date)`, s.table)
	if err := q.QueryRow(ctx, sql, tokenKey, payDay).Scan(&found); err != nil {
		return false, fmt.Errorf("select exists: %w", err)
	}
	return found, nil
}

// Insert checks and inserts in one transaction. The unique constraint settles races between
// concurrent transactions.
func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	// no-op after a successful commit
	defer func() { _ = tx.Rollback(ctx) }()

	found, err := s.exists(ctx, tx, rec.TokenKey, rec.PayDay)
	if err != nil {
		return err
	}
	if found {
		return ErrDuplicate
	}

	q := fmt.Sprintf(`INSERT INTO %s (
	token_key, pay_day, api_id, mobile, bank_code, account_no, pay_date, additional_data,
	debit_amount, real_amount, resp_code, resp_desc, trace_transfer, message_type, order_code,
	promotion_code, add_value, check_sum, user_name, status, created_at
) VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`, s.table)

	_, err = tx.Exec(ctx, q,
		rec.TokenKey, rec.PayDay, rec.APIID, rec.Mobile, rec.BankCode, rec.AccountNo, rec.PayDate, rec.AdditionalData,
		rec.DebitAmount, rec.RealAmount, rec.RespCode, rec.RespDesc, rec.TraceTransfer, rec.MessageType, rec.OrderCode,
		rec.PromotionCode, rec.AddValue, rec.CheckSum, rec.UserName, rec.Status, rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
