package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"

	"github.com/bivunote/billing-gateway/billing"
	pg "github.com/bivunote/billing-gateway/database/postgres"
)

const transactionTable = `"billing_transaction"`

type transactionModel struct {
	TransactionID string    `db:"transactionId"`
	ProductID     string    `db:"productId"`
	PurchaseTime  int64     `db:"purchaseTime"`
	Receipt       string    `db:"receipt"`
	PurchaseToken string    `db:"purchaseToken"`
	CreatedAt     time.Time `db:"createdAt"`
}

type pgStore struct {
	db *sqlx.DB
}

func NewInPostgres(db *sql.DB) billing.Store {
	return &pgStore{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *pgStore) reset() {
	_, err := s.db.ExecContext(context.Background(), `DELETE FROM `+transactionTable)
	if err != nil {
		panic(err)
	}
}

func (s *pgStore) RecordTransaction(ctx context.Context, record *billing.Record) error {
	encodedReceipt := pg.Encode([]byte(record.Receipt))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+transactionTable+` ("transactionId", "productId", "purchaseTime", "receipt", "purchaseToken", "createdAt")
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.TransactionID, record.ProductID, record.PurchaseTime, encodedReceipt, record.PurchaseToken, record.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return billing.ErrExists
		}
		return err
	}

	return nil
}

func (s *pgStore) GetTransaction(ctx context.Context, transactionID string) (*billing.Record, error) {
	var m transactionModel
	query := `SELECT "transactionId", "productId", "purchaseTime", "receipt", "purchaseToken", "createdAt" FROM ` +
		transactionTable + ` WHERE "transactionId" = $1`
	err := s.db.GetContext(ctx, &m, query, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, billing.ErrNotFound
		}
		return nil, err
	}

	return fromModel(&m)
}

func (s *pgStore) ListTransactions(ctx context.Context) ([]*billing.Record, error) {
	var models []transactionModel
	query := `SELECT "transactionId", "productId", "purchaseTime", "receipt", "purchaseToken", "createdAt" FROM ` +
		transactionTable + ` ORDER BY "purchaseTime" ASC, "transactionId" ASC`
	err := s.db.SelectContext(ctx, &models, query)
	if err != nil {
		return nil, err
	}

	records := make([]*billing.Record, 0, len(models))
	for i := range models {
		record, err := fromModel(&models[i])
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func fromModel(m *transactionModel) (*billing.Record, error) {
	decodedReceipt, err := pg.Decode(m.Receipt)
	if err != nil {
		return nil, err
	}

	return &billing.Record{
		TransactionID: m.TransactionID,
		ProductID:     m.ProductID,
		PurchaseTime:  m.PurchaseTime,
		Receipt:       string(decodedReceipt),
		PurchaseToken: m.PurchaseToken,
		CreatedAt:     m.CreatedAt,
	}, nil
}
