package db

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/xtrntr/tradeproof/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// Store persists payment proofs and the local report ledger
type Store interface {
	SavePaymentProof(ctx context.Context, proof *models.PaymentProof) error
	GetPaymentProof(ctx context.Context, paymentID string) (*models.PaymentProof, error)
	SaveReport(ctx context.Context, report *models.ReportRecord) error
	GetReport(ctx context.Context, reportID string) (*models.ReportRecord, error)
	Close(ctx context.Context) error
}

// Open connects to the store selected by driver and applies its schema
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "postgres":
		db, err := NewDB(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	case "sqlite", "":
		return NewSQLite(ctx, dsn)
	}
	return nil, fmt.Errorf("unknown database driver %q", driver)
}

func schema(name string) (string, error) {
	data, err := migrations.ReadFile("migrations/" + name + ".sql")
	if err != nil {
		return "", fmt.Errorf("failed to read migration: %w", err)
	}
	return string(data), nil
}
