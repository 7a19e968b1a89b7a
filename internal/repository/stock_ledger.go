package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

// StockLedger is the authoritative per-product on-hand counter.
//
// Only Stock gates writes. Available subtracts live reservations and is
// advisory: it is shown to users but never enforced at decrement time.
type StockLedger interface {
	Stock(ctx context.Context, productID uuid.UUID) (int, error)
	HasEnoughStock(ctx context.Context, productID uuid.UUID, quantity int) (bool, error)
	Available(ctx context.Context, productID uuid.UUID, now time.Time) (int, error)
	// Decrement reduces stock by quantity, or fails with
	// *domain.InsufficientStockError leaving stock untouched.
	Decrement(ctx context.Context, productID uuid.UUID, quantity int) error
}

type stockLedger struct {
	db DBTX
}

// NewStockLedger creates a StockLedger over the products table
func NewStockLedger(db DBTX) StockLedger {
	return &stockLedger{db: db}
}

func (l *stockLedger) Stock(ctx context.Context, productID uuid.UUID) (int, error) {
	var stock int
	err := l.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("failed to read stock: %w", err)
	}
	return stock, nil
}

func (l *stockLedger) HasEnoughStock(ctx context.Context, productID uuid.UUID, quantity int) (bool, error) {
	stock, err := l.Stock(ctx, productID)
	if err != nil {
		return false, err
	}
	return stock >= quantity, nil
}

func (l *stockLedger) Available(ctx context.Context, productID uuid.UUID, now time.Time) (int, error) {
	query := `
		SELECT p.stock - COALESCE(SUM(c.quantity), 0)
		FROM products p
		LEFT JOIN cart_items c ON c.product_id = p.id AND c.expires_at > $2
		WHERE p.id = $1
		GROUP BY p.id, p.stock
	`

	var available int
	err := l.db.QueryRowContext(ctx, query, productID, now).Scan(&available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("failed to compute available stock: %w", err)
	}

	if available < 0 {
		available = 0
	}
	return available, nil
}

func (l *stockLedger) Decrement(ctx context.Context, productID uuid.UUID, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("invalid decrement quantity %d", quantity)
	}

	result, err := l.db.ExecContext(ctx,
		`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
		productID, quantity,
	)
	if err != nil {
		if isCheckViolation(err) {
			// The statement failed, so inside a transaction nothing more can be read.
			return &domain.InsufficientStockError{ProductID: productID, Requested: quantity}
		}
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return l.insufficient(ctx, productID, quantity)
	}

	return nil
}

// insufficient builds the error for a rejected decrement, distinguishing a
// missing product from a short one.
func (l *stockLedger) insufficient(ctx context.Context, productID uuid.UUID, quantity int) error {
	var (
		name  string
		stock int
	)
	err := l.db.QueryRowContext(ctx, `SELECT name, stock FROM products WHERE id = $1`, productID).Scan(&name, &stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProductNotFound
		}
		return fmt.Errorf("failed to read stock: %w", err)
	}

	return &domain.InsufficientStockError{
		ProductID:   productID,
		ProductName: name,
		Requested:   quantity,
		Available:   stock,
	}
}
