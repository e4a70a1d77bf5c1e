// Package postgres implements the storage interfaces on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/onboarding"
	"github.com/splito-labs/settlement_gateway/internal/app/domain/settlement"
	"github.com/splito-labs/settlement_gateway/internal/app/storage"
)

const uniqueViolation = "23505"

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.SettlementStore = (*Store)(nil)
var _ storage.OnboardingStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// Open connects with lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// settlementRow adds the serialized JSONB columns.
type settlementRow struct {
	settlement.Settlement
	BreakdownJSON      []byte `db:"breakdown"`
	CounterpartiesJSON []byte `db:"counterparties"`
}

func (r settlementRow) decode() (settlement.Settlement, error) {
	rec := r.Settlement
	rec.Breakdown = nil
	if len(r.BreakdownJSON) > 0 {
		if err := json.Unmarshal(r.BreakdownJSON, &rec.Breakdown); err != nil {
			return settlement.Settlement{}, fmt.Errorf("decode breakdown of %s: %w", rec.ID, err)
		}
	}
	rec.Counterparties = nil
	if len(r.CounterpartiesJSON) > 0 {
		if err := json.Unmarshal(r.CounterpartiesJSON, &rec.Counterparties); err != nil {
			return settlement.Settlement{}, fmt.Errorf("decode counterparties of %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

func encodeRow(rec settlement.Settlement) (settlementRow, error) {
	lines := rec.Breakdown
	if lines == nil {
		lines = []settlement.Line{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return settlementRow{}, err
	}
	parties := rec.Counterparties
	if parties == nil {
		parties = []string{}
	}
	rawParties, err := json.Marshal(parties)
	if err != nil {
		return settlementRow{}, err
	}
	return settlementRow{Settlement: rec, BreakdownJSON: raw, CounterpartiesJSON: rawParties}, nil
}

const settlementColumns = `id, user_id, group_id, friend_id, kind, token_id, chain_id, address, amount,
	breakdown, counterparties, status, remote_id, unsigned_tx, tx_hash, error_code, message, created_at, updated_at`

// --- SettlementStore ---------------------------------------------------------

func (s *Store) CreateSettlement(ctx context.Context, rec settlement.Settlement) (settlement.Settlement, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	row, err := encodeRow(rec)
	if err != nil {
		return settlement.Settlement{}, err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO settlements (`+settlementColumns+`)
		VALUES (:id, :user_id, :group_id, :friend_id, :kind, :token_id, :chain_id, :address, :amount,
			:breakdown, :counterparties, :status, :remote_id, :unsigned_tx, :tx_hash, :error_code, :message, :created_at, :updated_at)
	`, row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return settlement.Settlement{}, storage.ErrStaleStatus
		}
		return settlement.Settlement{}, err
	}
	return rec, nil
}

func (s *Store) GetSettlement(ctx context.Context, id string) (settlement.Settlement, error) {
	if _, err := uuid.Parse(id); err != nil {
		return settlement.Settlement{}, storage.ErrNotFound
	}
	var row settlementRow
	err := s.db.GetContext(ctx, &row, `SELECT `+settlementColumns+` FROM settlements WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return settlement.Settlement{}, storage.ErrNotFound
	}
	if err != nil {
		return settlement.Settlement{}, err
	}
	return row.decode()
}

func (s *Store) ListSettlements(ctx context.Context, userID string, limit int) ([]settlement.Settlement, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []settlementRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+settlementColumns+`
		FROM settlements
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return decodeRows(rows)
}

func (s *Store) UpdateSettlement(ctx context.Context, rec settlement.Settlement, from settlement.Status) (settlement.Settlement, error) {
	rec.UpdatedAt = time.Now().UTC()
	row, err := encodeRow(rec)
	if err != nil {
		return settlement.Settlement{}, err
	}

	var createdAt time.Time
	err = s.db.QueryRowxContext(ctx, `
		UPDATE settlements
		SET status = $3, remote_id = $4, unsigned_tx = $5, tx_hash = $6, error_code = $7,
			message = $8, amount = $9, breakdown = $10, updated_at = $11
		WHERE id = $1 AND status = $2
		RETURNING created_at
	`, rec.ID, string(from), string(rec.Status), rec.RemoteID, rec.UnsignedTx, rec.TxHash, rec.ErrorCode,
		rec.Message, rec.Amount, row.BreakdownJSON, rec.UpdatedAt).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetSettlement(ctx, rec.ID); getErr != nil {
			return settlement.Settlement{}, getErr
		}
		return settlement.Settlement{}, storage.ErrStaleStatus
	}
	if err != nil {
		return settlement.Settlement{}, err
	}
	rec.CreatedAt = createdAt
	return rec, nil
}

func (s *Store) ListSubmittedSettlements(ctx context.Context) ([]settlement.Settlement, error) {
	var rows []settlementRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+settlementColumns+`
		FROM settlements
		WHERE status = $1
		ORDER BY updated_at
	`, string(settlement.StatusSubmitted))
	if err != nil {
		return nil, err
	}
	return decodeRows(rows)
}

func decodeRows(rows []settlementRow) ([]settlement.Settlement, error) {
	out := make([]settlement.Settlement, 0, len(rows))
	for _, row := range rows {
		rec, err := row.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// --- OnboardingStore ---------------------------------------------------------

func (s *Store) MarkSeen(ctx context.Context, userID, tutorial string) (onboarding.Flag, error) {
	var flag onboarding.Flag
	// The no-op update makes RETURNING yield the existing row on conflict.
	err := s.db.GetContext(ctx, &flag, `
		INSERT INTO onboarding_flags (user_id, tutorial, seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, tutorial) DO UPDATE SET seen_at = onboarding_flags.seen_at
		RETURNING user_id, tutorial, seen_at
	`, userID, tutorial, time.Now().UTC())
	if err != nil {
		return onboarding.Flag{}, err
	}
	return flag, nil
}

func (s *Store) GetFlag(ctx context.Context, userID, tutorial string) (onboarding.Flag, error) {
	var flag onboarding.Flag
	err := s.db.GetContext(ctx, &flag, `
		SELECT user_id, tutorial, seen_at FROM onboarding_flags
		WHERE user_id = $1 AND tutorial = $2
	`, userID, tutorial)
	if errors.Is(err, sql.ErrNoRows) {
		return onboarding.Flag{}, storage.ErrNotFound
	}
	if err != nil {
		return onboarding.Flag{}, err
	}
	return flag, nil
}

func (s *Store) ListFlags(ctx context.Context, userID string) ([]onboarding.Flag, error) {
	var flags []onboarding.Flag
	err := s.db.SelectContext(ctx, &flags, `
		SELECT user_id, tutorial, seen_at FROM onboarding_flags
		WHERE user_id = $1
		ORDER BY tutorial
	`, userID)
	if err != nil {
		return nil, err
	}
	return flags, nil
}

func (s *Store) ResetFlag(ctx context.Context, userID, tutorial string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM onboarding_flags WHERE user_id = $1 AND tutorial = $2`, userID, tutorial)
	return err
}
