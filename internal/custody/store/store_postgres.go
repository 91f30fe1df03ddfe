package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"reservemint/internal/custody/models"
	"reservemint/pkg/domain"
	"reservemint/pkg/platform/sentinel"
	platformtx "reservemint/pkg/platform/tx"
)

// Postgres persists custody accounts in PostgreSQL. Execute uses
// SELECT ... FOR UPDATE inside a transaction so validate and mutate observe
// a row no concurrent reservation can touch.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed account store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// CreateIfRefAvailable implements AccountStore. A partial unique index on
// (lower(external_ref)) WHERE status = 'active' enforces the reference
// uniqueness; unique violations surface as sentinel.ErrAlreadyUsed.
func (s *Postgres) CreateIfRefAvailable(ctx context.Context, account *models.CustodyAccount) error {
	const q = `
		INSERT INTO custody_accounts
			(id, account_name, bank_name, external_ref, balance_micros, locked_micros, status, owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, q,
		uuid.UUID(account.ID), account.AccountName, account.BankName, account.ExternalRef,
		int64(account.Balance.Micros()), int64(account.LockedBalance.Micros()),
		string(account.Status), account.Owner, account.CreatedAt, account.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("insert custody account: %w", err)
	}
	return nil
}

// FindByID implements AccountStore.
func (s *Postgres) FindByID(ctx context.Context, id domain.AccountID) (*models.CustodyAccount, error) {
	const q = `
		SELECT id, account_name, bank_name, external_ref, balance_micros, locked_micros, status, owner, created_at, updated_at
		FROM custody_accounts WHERE id = $1`
	return scanAccount(s.db.QueryRowContext(ctx, q, uuid.UUID(id)))
}

// List implements AccountStore.
func (s *Postgres) List(ctx context.Context) ([]*models.CustodyAccount, error) {
	const q = `
		SELECT id, account_name, bank_name, external_ref, balance_micros, locked_micros, status, owner, created_at, updated_at
		FROM custody_accounts ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list custody accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.CustodyAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

// Execute implements the atomic validate-then-mutate contract with a row lock.
func (s *Postgres) Execute(ctx context.Context, id domain.AccountID,
	validate func(*models.CustodyAccount) error,
	mutate func(*models.CustodyAccount)) (*models.CustodyAccount, error) {

	tx, ambient := platformtx.From(ctx)
	if !ambient {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin account tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op
	}

	const sel = `
		SELECT id, account_name, bank_name, external_ref, balance_micros, locked_micros, status, owner, created_at, updated_at
		FROM custody_accounts WHERE id = $1 FOR UPDATE`
	account, err := scanAccount(tx.QueryRowContext(ctx, sel, uuid.UUID(id)))
	if err != nil {
		return nil, err
	}

	if err := validate(account); err != nil {
		return nil, err
	}
	mutate(account)

	const upd = `
		UPDATE custody_accounts
		SET balance_micros = $2, locked_micros = $3, status = $4, updated_at = $5
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, upd,
		uuid.UUID(account.ID), int64(account.Balance.Micros()), int64(account.LockedBalance.Micros()),
		string(account.Status), account.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update custody account: %w", err)
	}

	// An ambient transaction is committed by whoever opened it.
	if !ambient {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit account tx: %w", err)
		}
	}
	return account, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.CustodyAccount, error) {
	var (
		account               models.CustodyAccount
		rawID                 uuid.UUID
		balanceMic, lockedMic int64
		status                string
	)
	err := row.Scan(&rawID, &account.AccountName, &account.BankName, &account.ExternalRef,
		&balanceMic, &lockedMic, &status, &account.Owner, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan custody account: %w", err)
	}
	account.ID = domain.AccountID(rawID)
	account.Balance = domain.Amount(balanceMic)
	account.LockedBalance = domain.Amount(lockedMic)
	account.Status = models.AccountStatus(status)
	return &account, nil
}
