package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/settlement"
	"github.com/splito-labs/settlement_gateway/internal/app/storage"
	"github.com/splito-labs/settlement_gateway/internal/platform/migrations"
)

var rowColumns = []string{
	"id", "user_id", "group_id", "friend_id", "kind", "token_id", "chain_id", "address", "amount",
	"breakdown", "counterparties", "status", "remote_id", "unsigned_tx", "tx_hash", "error_code", "message", "created_at", "updated_at",
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestGetSettlementDecodesBreakdown(t *testing.T) {
	store, mock := newMock(t)
	id := uuid.NewString()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM settlements WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(rowColumns).AddRow(
			id, "u1", "g1", "", "all", "xlm", "stellar-testnet", "GABC", "25.5",
			[]byte(`[{"currency":"USD","amount":50,"tokenAmount":25.5,"price":2,"source":"pricing"}]`),
			[]byte(`["f1","f2"]`),
			"submitted", "remote-1", "", "", "", "", now, now,
		))

	rec, err := store.GetSettlement(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != settlement.StatusSubmitted || rec.Kind != settlement.KindAll {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.Amount.Equal(decimal.RequireFromString("25.5")) {
		t.Fatalf("amount: got %s", rec.Amount)
	}
	if len(rec.Breakdown) != 1 || rec.Breakdown[0].Source != settlement.SourcePricing {
		t.Fatalf("breakdown: %+v", rec.Breakdown)
	}
	if len(rec.Counterparties) != 2 || rec.Counterparties[1] != "f2" {
		t.Fatalf("counterparties: %v", rec.Counterparties)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetSettlementNotFound(t *testing.T) {
	store, mock := newMock(t)
	id := uuid.NewString()
	mock.ExpectQuery("FROM settlements").WithArgs(id).WillReturnError(sql.ErrNoRows)

	if _, err := store.GetSettlement(context.Background(), id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.GetSettlement(context.Background(), "not-a-uuid"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("malformed ids are not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateSettlementStaleStatus(t *testing.T) {
	store, mock := newMock(t)
	id := uuid.NewString()
	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE settlements").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("FROM settlements WHERE id").WithArgs(id).
		WillReturnRows(sqlmock.NewRows(rowColumns).AddRow(
			id, "u1", "", "f1", "one", "apt", "aptos-testnet", "0x1", "1",
			[]byte(`[]`), []byte(`[]`), "confirmed", "", "", "0xabc", "", "", now, now,
		))

	rec := settlement.Settlement{ID: id, Status: settlement.StatusConfirmed}
	if _, err := store.UpdateSettlement(context.Background(), rec, settlement.StatusSubmitted); !errors.Is(err, storage.ErrStaleStatus) {
		t.Fatalf("expected stale status, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateSettlementKeepsCreatedAt(t *testing.T) {
	store, mock := newMock(t)
	id := uuid.NewString()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("UPDATE settlements").
		WithArgs(id, "submitted", "confirmed", "", "", "0xabc", "", "", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	rec := settlement.Settlement{ID: id, Status: settlement.StatusConfirmed, TxHash: "0xabc"}
	updated, err := store.UpdateSettlement(context.Background(), rec, settlement.StatusSubmitted)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.CreatedAt.Equal(created) {
		t.Fatalf("created_at: got %s", updated.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn, 2, 1, time.Minute)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := New(db)
	rec, err := store.CreateSettlement(ctx, settlement.Settlement{
		UserID:  "integration-user",
		Kind:    settlement.KindOne,
		TokenID: "xlm",
		ChainID: "stellar-testnet",
		Address: "GABC",
		Amount:  decimal.RequireFromString("12.3456789"),
		Status:  settlement.StatusPending,

		Counterparties: []string{"integration-friend"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec.Status = settlement.StatusSubmitted
	if _, err := store.UpdateSettlement(ctx, rec, settlement.StatusPending); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := store.UpdateSettlement(ctx, rec, settlement.StatusPending); !errors.Is(err, storage.ErrStaleStatus) {
		t.Fatalf("expected stale status, got %v", err)
	}

	got, err := store.GetSettlement(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Amount.Equal(rec.Amount) {
		t.Fatalf("amount: got %s want %s", got.Amount, rec.Amount)
	}
	if len(got.Counterparties) != 1 || got.Counterparties[0] != "integration-friend" {
		t.Fatalf("counterparties: %v", got.Counterparties)
	}

	if _, err := store.MarkSeen(ctx, "integration-user", "settle"); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if _, err := store.GetFlag(ctx, "integration-user", "settle"); err != nil {
		t.Fatalf("get flag: %v", err)
	}
	if err := store.ResetFlag(ctx, "integration-user", "settle"); err != nil {
		t.Fatalf("reset flag: %v", err)
	}
}
