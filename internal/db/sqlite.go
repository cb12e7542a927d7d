package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xtrntr/tradeproof/internal/models"
	_ "modernc.org/sqlite"
)

// SQLite is an embedded single-file Store
type SQLite struct {
	DB *sql.DB
}

// NewSQLite opens (or creates) the database at path and applies the schema
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)

	ddl, err := schema("sqlite")
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &SQLite{DB: db}, nil
}

func (s *SQLite) Close(ctx context.Context) error {
	return s.DB.Close()
}

func (s *SQLite) SavePaymentProof(ctx context.Context, proof *models.PaymentProof) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO payment_proofs (payment_id, tier, confirmed_at, expires_at) VALUES (?, ?, ?, ?) ON CONFLICT (payment_id) DO NOTHING",
		proof.PaymentID, proof.Tier, proof.ConfirmedAt.UnixMilli(), proof.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save payment proof: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyExists
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLite) GetPaymentProof(ctx context.Context, paymentID string) (*models.PaymentProof, error) {
	var (
		proof                  models.PaymentProof
		confirmedAt, expiresAt int64
	)
	err := s.DB.QueryRowContext(ctx,
		"SELECT payment_id, tier, confirmed_at, expires_at FROM payment_proofs WHERE payment_id = ?",
		paymentID).Scan(&proof.PaymentID, &proof.Tier, &confirmedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment proof: %w", err)
	}
	proof.ConfirmedAt = time.UnixMilli(confirmedAt).UTC()
	proof.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &proof, nil
}

func (s *SQLite) SaveReport(ctx context.Context, r *models.ReportRecord) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO reports (
			report_id, trader_id, trader_address, commitment, report_hash,
			trade_count, symbol_count, timestamp_start, timestamp_end,
			total_pnl_value, total_pnl_negative, transaction_hash, block_number, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		r.ReportID, r.TraderID, r.TraderAddress, r.Commitment, r.ReportHash,
		int64(r.TradeCount), int64(r.SymbolCount), r.TimestampStart, r.TimestampEnd,
		r.TotalPnLValue, r.TotalPnLNegative, r.TransactionHash, int64(r.BlockNumber), r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyExists
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLite) GetReport(ctx context.Context, reportID string) (*models.ReportRecord, error) {
	var (
		r                                              models.ReportRecord
		tradeCount, symbolCount, blockNumber, createdAt int64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT report_id, trader_id, trader_address, commitment, report_hash,
			trade_count, symbol_count, timestamp_start, timestamp_end,
			total_pnl_value, total_pnl_negative, transaction_hash, block_number, created_at
		FROM reports
		WHERE report_id = ?
	`, reportID).Scan(
		&r.ReportID, &r.TraderID, &r.TraderAddress, &r.Commitment, &r.ReportHash,
		&tradeCount, &symbolCount, &r.TimestampStart, &r.TimestampEnd,
		&r.TotalPnLValue, &r.TotalPnLNegative, &r.TransactionHash, &blockNumber, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	r.TradeCount = uint64(tradeCount)
	r.SymbolCount = uint64(symbolCount)
	r.BlockNumber = uint64(blockNumber)
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &r, nil
}
