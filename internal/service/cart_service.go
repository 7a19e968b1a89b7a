package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/metrics"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService manages a user's stock reservations. A line stops counting
// once its expiry passes; every read drops such lines first.
type CartService interface {
	ListActive(ctx context.Context, userID uuid.UUID) ([]*domain.CartItem, error)
	AddOrUpdate(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.CartItem, error)
	UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*domain.CartItem, error)
	Remove(ctx context.Context, userID, itemID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
}

type cartService struct {
	repos  repository.Repositories
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewCartService creates a new instance of CartService. ttl is how long an
// added or updated line stays reserved.
func NewCartService(repos repository.Repositories, ttl time.Duration, logger *zap.Logger) CartService {
	return &cartService{
		repos:  repos,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *cartService) ListActive(ctx context.Context, userID uuid.UUID) ([]*domain.CartItem, error) {
	items, err := s.repos.Carts.ListActive(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list cart: %w", err)
	}
	return items, nil
}

// AddOrUpdate reserves quantity of a product. An existing line for the same
// product has its quantity replaced, not summed, and its expiry renewed.
func (s *cartService) AddOrUpdate(ctx context.Context, userID, productID uuid.UUID, quantity int) (item *domain.CartItem, err error) {
	defer func() { s.observe("add", err) }()

	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.checkStock(ctx, productID, quantity)
	if err != nil {
		return nil, err
	}

	now := s.now()
	item = &domain.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repos.Carts.Upsert(ctx, item); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, ErrUnknownProduct
		}
		return nil, fmt.Errorf("failed to save cart item: %w", err)
	}
	item.Product = product

	s.logger.Debug("Cart line reserved",
		zap.String("user_id", userID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("quantity", quantity),
		zap.Time("expires_at", item.ExpiresAt),
	)

	return item, nil
}

// UpdateQuantity sets the quantity of an owned, unexpired line and renews
// that line only.
func (s *cartService) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (item *domain.CartItem, err error) {
	defer func() { s.observe("update", err) }()

	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	now := s.now()
	item, err = s.repos.Carts.FindByID(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if !item.Active(now) {
		return nil, repository.ErrCartItemNotFound
	}

	product, err := s.checkStock(ctx, item.ProductID, quantity)
	if err != nil {
		return nil, err
	}

	item.Quantity = quantity
	item.ExpiresAt = now.Add(s.ttl)
	if err := s.repos.Carts.UpdateQuantity(ctx, item); err != nil {
		return nil, err
	}
	item.Product = product

	return item, nil
}

func (s *cartService) Remove(ctx context.Context, userID, itemID uuid.UUID) (err error) {
	defer func() { s.observe("remove", err) }()
	return s.repos.Carts.Delete(ctx, userID, itemID)
}

func (s *cartService) Clear(ctx context.Context, userID uuid.UUID) (err error) {
	defer func() { s.observe("clear", err) }()

	removed, err := s.repos.Carts.Clear(ctx, userID)
	if err != nil {
		return err
	}

	s.logger.Debug("Cart cleared", zap.String("user_id", userID.String()), zap.Int64("lines", removed))
	return nil
}

// checkStock loads the product and verifies the on-hand count covers
// quantity. Reservations held by other users are not subtracted.
func (s *cartService) checkStock(ctx context.Context, productID uuid.UUID, quantity int) (*domain.Product, error) {
	product, err := s.repos.Products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, ErrUnknownProduct
		}
		return nil, err
	}

	ok, err := s.repos.Stock.HasEnoughStock(ctx, productID, quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &domain.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   quantity,
			Available:   product.Stock,
		}
	}

	return product, nil
}

func (s *cartService) observe(operation string, err error) {
	metrics.CartOperationsTotal.WithLabelValues(operation,
		resultLabel(err, ErrInvalidQuantity, ErrUnknownProduct, repository.ErrCartItemNotFound),
	).Inc()
}

// CartExpiresAt is the cart-wide countdown shown to clients: the latest
// expiry among the lines, or the zero time for an empty cart.
func CartExpiresAt(items []*domain.CartItem) time.Time {
	var latest time.Time
	for _, item := range items {
		if item.ExpiresAt.After(latest) {
			latest = item.ExpiresAt
		}
	}
	return latest
}

// CartTotal sums quantity times current price over the lines
func CartTotal(items []*domain.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}
