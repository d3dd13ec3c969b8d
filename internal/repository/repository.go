// Package repository persists purchase receipts.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clothly/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrReceiptNotFound = errors.New("receipt not found")

type Repository struct {
	db *sql.DB
}

type RepoInterface interface {
	SaveReceipt(ctx context.Context, receipt *domain.Receipt) error
	ListReceipts(ctx context.Context, limit int) ([]*domain.Receipt, error)
	GetUnpublishedReceipts(ctx context.Context, limit int) ([]*domain.Receipt, error)
	MarkReceiptPublished(ctx context.Context, id uuid.UUID) error
	Close() error
	RunMigrations(string) error
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serialises writers anyway, and ":memory:" is per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) SaveReceipt(ctx context.Context, receipt *domain.Receipt) error {
	entriesJSON, err := json.Marshal(receipt.Entries)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt entries: %w", err)
	}
	sellersJSON, err := json.Marshal(receipt.Sellers)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt sellers: %w", err)
	}

	query := `INSERT INTO receipts (id, kind, account, total, entries, sellers, tx_hash, published, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.ExecContext(ctx, query,
		receipt.ID.String(),
		string(receipt.Kind),
		receipt.Account,
		receipt.Total,
		string(entriesJSON),
		string(sellersJSON),
		receipt.TxHash,
		receipt.Published,
		receipt.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

// ListReceipts returns the newest receipts first.
func (r *Repository) ListReceipts(ctx context.Context, limit int) ([]*domain.Receipt, error) {
	query := `
		SELECT id, kind, account, total, entries, sellers, tx_hash, published, created_at
		FROM receipts
		ORDER BY created_at DESC, id
		LIMIT $1
	`
	return r.queryReceipts(ctx, query, limit)
}

// GetUnpublishedReceipts returns the oldest receipts not yet sent to the broker.
func (r *Repository) GetUnpublishedReceipts(ctx context.Context, limit int) ([]*domain.Receipt, error) {
	query := `
		SELECT id, kind, account, total, entries, sellers, tx_hash, published, created_at
		FROM receipts
		WHERE published = 0
		ORDER BY created_at, id
		LIMIT $1
	`
	return r.queryReceipts(ctx, query, limit)
}

func (r *Repository) MarkReceiptPublished(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE receipts SET published = 1 WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("failed to mark receipt published: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

func (r *Repository) queryReceipts(ctx context.Context, query string, args ...interface{}) ([]*domain.Receipt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*domain.Receipt
	for rows.Next() {
		var (
			id, kind, entries, sellers string
			createdAt                  int64
		)
		rec := &domain.Receipt{}
		err := rows.Scan(
			&id,
			&kind,
			&rec.Account,
			&rec.Total,
			&entries,
			&sellers,
			&rec.TxHash,
			&rec.Published,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}

		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid receipt id %q: %w", id, err)
		}
		rec.Kind = domain.ReceiptKind(kind)
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		if err := json.Unmarshal([]byte(entries), &rec.Entries); err != nil {
			return nil, fmt.Errorf("failed to unmarshal receipt entries: %w", err)
		}
		if err := json.Unmarshal([]byte(sellers), &rec.Sellers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal receipt sellers: %w", err)
		}
		receipts = append(receipts, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return receipts, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
