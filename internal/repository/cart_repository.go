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

var (
	ErrCartItemNotFound = errors.New("cart item not found")
)

// CartRepository stores cart reservations. Expired rows are purged lazily
// by ListActive and in bulk by PurgeExpired.
type CartRepository interface {
	// ListActive deletes the user's expired lines, then returns the rest
	// with their products loaded.
	ListActive(ctx context.Context, userID uuid.UUID, now time.Time) ([]*domain.CartItem, error)
	FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.CartItem, error)
	// Upsert finds the line by (user_id, product_id) and replaces its
	// quantity and expiry, or creates it. item.ID and timestamps are
	// filled from the stored row.
	Upsert(ctx context.Context, item *domain.CartItem) error
	UpdateQuantity(ctx context.Context, item *domain.CartItem) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) (int64, error)
	// TakeActive deletes all of the user's lines and returns the ones still
	// active at now. Concurrent callers block on the row locks, so each
	// line is returned to at most one transaction.
	TakeActive(ctx context.Context, userID uuid.UUID, now time.Time) ([]*domain.CartItem, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type cartRepository struct {
	db DBTX
}

// NewCartRepository creates a new instance of CartRepository
func NewCartRepository(db DBTX) CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) ListActive(ctx context.Context, userID uuid.UUID, now time.Time) ([]*domain.CartItem, error) {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND expires_at <= $2`,
		userID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to purge expired cart items: %w", err)
	}

	query := `
		SELECT c.id, c.user_id, c.product_id, c.quantity, c.expires_at, c.created_at, c.updated_at,
		       p.id, p.name, COALESCE(p.description, ''), p.price, COALESCE(p.image_url, ''), p.stock, p.created_at, p.updated_at
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1 AND c.expires_at > $2
		ORDER BY c.created_at, c.id
	`

	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer rows.Close()

	items := []*domain.CartItem{}
	for rows.Next() {
		item := &domain.CartItem{Product: &domain.Product{}}
		err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.ProductID,
			&item.Quantity,
			&item.ExpiresAt,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.Product.ID,
			&item.Product.Name,
			&item.Product.Description,
			&item.Product.Price,
			&item.Product.ImageURL,
			&item.Product.Stock,
			&item.Product.CreatedAt,
			&item.Product.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}

	return items, nil
}

func (r *cartRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.CartItem, error) {
	query := `
		SELECT id, user_id, product_id, quantity, expires_at, created_at, updated_at
		FROM cart_items
		WHERE id = $1 AND user_id = $2
	`

	item := &domain.CartItem{}
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(
		&item.ID,
		&item.UserID,
		&item.ProductID,
		&item.Quantity,
		&item.ExpiresAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("failed to find cart item: %w", err)
	}

	return item, nil
}

func (r *cartRepository) Upsert(ctx context.Context, item *domain.CartItem) error {
	query := `
		INSERT INTO cart_items (id, user_id, product_id, quantity, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, expires_at = EXCLUDED.expires_at
		RETURNING id, created_at, updated_at
	`

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		item.ID,
		item.UserID,
		item.ProductID,
		item.Quantity,
		item.ExpiresAt,
		item.UpdatedAt,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)

	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrProductNotFound
		}
		return fmt.Errorf("failed to upsert cart item: %w", err)
	}

	return nil
}

func (r *cartRepository) UpdateQuantity(ctx context.Context, item *domain.CartItem) error {
	query := `
		UPDATE cart_items
		SET quantity = $3, expires_at = $4
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query, item.ID, item.UserID, item.Quantity, item.ExpiresAt).Scan(&item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCartItemNotFound
		}
		return fmt.Errorf("failed to update cart item: %w", err)
	}

	return nil
}

func (r *cartRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrCartItemNotFound
	}

	return nil
}

func (r *cartRepository) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}
	return result.RowsAffected()
}

func (r *cartRepository) TakeActive(ctx context.Context, userID uuid.UUID, now time.Time) ([]*domain.CartItem, error) {
	query := `
		DELETE FROM cart_items
		WHERE user_id = $1
		RETURNING id, user_id, product_id, quantity, expires_at, created_at, updated_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to take cart items: %w", err)
	}
	defer rows.Close()

	items := []*domain.CartItem{}
	for rows.Next() {
		item := &domain.CartItem{}
		err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.ProductID,
			&item.Quantity,
			&item.ExpiresAt,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		if item.Active(now) {
			items = append(items, item)
		}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}

	return items, nil
}

func (r *cartRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cart items: %w", err)
	}
	return result.RowsAffected()
}
