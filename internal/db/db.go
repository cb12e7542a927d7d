package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/xtrntr/tradeproof/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Migrate creates the tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	ddl, err := schema("postgres")
	if err != nil {
		return err
	}
	if _, err := db.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to apply migration: %w", err)
	}
	return nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// SavePaymentProof inserts a proof; a payment id can only be confirmed once
func (db *DB) SavePaymentProof(ctx context.Context, proof *models.PaymentProof) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing string
	err = tx.QueryRow(ctx,
		"SELECT payment_id FROM payment_proofs WHERE payment_id = $1 FOR UPDATE",
		proof.PaymentID).Scan(&existing)
	if err == nil {
		return ErrAlreadyExists
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to check payment proof: %w", err)
	}

	tag, err := tx.Exec(ctx,
		"INSERT INTO payment_proofs (payment_id, tier, confirmed_at, expires_at) VALUES ($1, $2, $3, $4) ON CONFLICT (payment_id) DO NOTHING",
		proof.PaymentID, proof.Tier, proof.ConfirmedAt, proof.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to save payment proof: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetPaymentProof retrieves a proof by payment id
func (db *DB) GetPaymentProof(ctx context.Context, paymentID string) (*models.PaymentProof, error) {
	proof := &models.PaymentProof{}
	err := db.Pool.QueryRow(ctx,
		"SELECT payment_id, tier, confirmed_at, expires_at FROM payment_proofs WHERE payment_id = $1",
		paymentID).Scan(&proof.PaymentID, &proof.Tier, &proof.ConfirmedAt, &proof.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment proof: %w", err)
	}
	return proof, nil
}

// SaveReport records a confirmed submission
func (db *DB) SaveReport(ctx context.Context, r *models.ReportRecord) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO reports (
			report_id, trader_id, trader_address, commitment, report_hash,
			trade_count, symbol_count, timestamp_start, timestamp_end,
			total_pnl_value, total_pnl_negative, transaction_hash, block_number, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING
	`,
		r.ReportID, r.TraderID, r.TraderAddress, r.Commitment, r.ReportHash,
		int64(r.TradeCount), int64(r.SymbolCount), r.TimestampStart, r.TimestampEnd,
		r.TotalPnLValue, r.TotalPnLNegative, r.TransactionHash, int64(r.BlockNumber), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetReport retrieves a ledger entry by report id
func (db *DB) GetReport(ctx context.Context, reportID string) (*models.ReportRecord, error) {
	var (
		r                                   models.ReportRecord
		tradeCount, symbolCount, blockNumber int64
	)
	err := db.Pool.QueryRow(ctx, `
		SELECT report_id, trader_id, trader_address, commitment, report_hash,
			trade_count, symbol_count, timestamp_start, timestamp_end,
			total_pnl_value, total_pnl_negative, transaction_hash, block_number, created_at
		FROM reports
		WHERE report_id = $1
	`, reportID).Scan(
		&r.ReportID, &r.TraderID, &r.TraderAddress, &r.Commitment, &r.ReportHash,
		&tradeCount, &symbolCount, &r.TimestampStart, &r.TimestampEnd,
		&r.TotalPnLValue, &r.TotalPnLNegative, &r.TransactionHash, &blockNumber, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	r.TradeCount = uint64(tradeCount)
	r.SymbolCount = uint64(symbolCount)
	r.BlockNumber = uint64(blockNumber)
	return &r, nil
}
