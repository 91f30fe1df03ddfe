package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"reservemint/internal/explorer/models"
	"reservemint/pkg/domain"
	"reservemint/pkg/platform/sentinel"
)

// Postgres persists explorer entries in PostgreSQL. The published_at
// column is the outbox marker: NULL rows are pending publication.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed entry store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const entryColumns = `publication_code, mint_record_id, lock_id, injection_id, consumption_id,
	beneficiary, amount_micros, tx_reference, signature_digest, minted_at`

// Append implements EntryStore.
func (s *Postgres) Append(ctx context.Context, entry models.Entry) error {
	const q = `
		INSERT INTO explorer_entries
			(publication_code, mint_record_id, lock_id, injection_id, consumption_id,
			 beneficiary, amount_micros, tx_reference, signature_digest, minted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, q,
		entry.PublicationCode, uuid.UUID(entry.MintRecordID), uuid.UUID(entry.LockID),
		uuid.UUID(entry.InjectionID), uuid.UUID(entry.ConsumptionID),
		entry.Beneficiary, int64(entry.AmountMinted.Micros()), entry.TxReference,
		entry.SignatureDigestTriple, entry.MintedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert explorer entry: %w", err)
	}
	return nil
}

// FindByPublicationCode implements EntryStore.
func (s *Postgres) FindByPublicationCode(ctx context.Context, code string) (models.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM explorer_entries WHERE publication_code = $1`
	return scanEntry(s.db.QueryRowContext(ctx, q, code))
}

// ListByLockID implements EntryStore.
func (s *Postgres) ListByLockID(ctx context.Context, lockID domain.LockID) ([]models.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM explorer_entries WHERE lock_id = $1 ORDER BY minted_at`
	return s.queryEntries(ctx, q, uuid.UUID(lockID))
}

// Recent implements EntryStore.
func (s *Postgres) Recent(ctx context.Context, n int) ([]models.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM explorer_entries ORDER BY minted_at DESC LIMIT $1`
	if n <= 0 {
		n = 100
	}
	return s.queryEntries(ctx, q, n)
}

// Count implements EntryStore.
func (s *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM explorer_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count explorer entries: %w", err)
	}
	return n, nil
}

// TotalMinted implements EntryStore.
func (s *Postgres) TotalMinted(ctx context.Context) (domain.Amount, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT coalesce(sum(amount_micros), 0) FROM explorer_entries`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum minted amounts: %w", err)
	}
	return domain.Amount(total), nil
}

// UnpublishedBatch implements EntryStore.
func (s *Postgres) UnpublishedBatch(ctx context.Context, limit int) ([]models.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM explorer_entries WHERE published_at IS NULL ORDER BY minted_at LIMIT $1`
	if limit <= 0 {
		limit = 100
	}
	return s.queryEntries(ctx, q, limit)
}

// MarkPublished implements EntryStore.
func (s *Postgres) MarkPublished(ctx context.Context, codes []string) error {
	const q = `UPDATE explorer_entries SET published_at = now() WHERE publication_code = ANY($1)`
	if _, err := s.db.ExecContext(ctx, q, pq.Array(codes)); err != nil {
		return fmt.Errorf("mark entries published: %w", err)
	}
	return nil
}

func (s *Postgres) queryEntries(ctx context.Context, q string, args ...any) ([]models.Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query explorer entries: %w", err)
	}
	defer rows.Close()

	var out []models.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (models.Entry, error) {
	var (
		entry                               models.Entry
		mintID, lockID, injectionID, consID uuid.UUID
		amountMic                           int64
	)
	err := row.Scan(&entry.PublicationCode, &mintID, &lockID, &injectionID, &consID,
		&entry.Beneficiary, &amountMic, &entry.TxReference, &entry.SignatureDigestTriple, &entry.MintedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entry{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Entry{}, fmt.Errorf("scan explorer entry: %w", err)
	}
	entry.MintRecordID = domain.MintRecordID(mintID)
	entry.LockID = domain.LockID(lockID)
	entry.InjectionID = domain.InjectionID(injectionID)
	entry.ConsumptionID = domain.ConsumptionID(consID)
	entry.AmountMinted = domain.Amount(amountMic)
	return entry, nil
}
