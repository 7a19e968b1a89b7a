package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxProductNameLength = 255

// ProductInput holds the fields of a new product
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
	Stock       int
}

// ProductPatch holds the fields to change; nil fields are kept
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	ImageURL    *string
	Stock       *int
}

// ProductService defines the catalog operations
type ProductService interface {
	List(ctx context.Context) ([]*domain.Product, error)
	// Get returns the product and its advisory availability: stock minus
	// quantities held in live carts.
	Get(ctx context.Context, id uuid.UUID) (*domain.Product, int, error)
	Create(ctx context.Context, input ProductInput) (*domain.Product, error)
	Update(ctx context.Context, id uuid.UUID, patch ProductPatch) (*domain.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type productService struct {
	repos  repository.Repositories
	tx     repository.Transactor
	logger *zap.Logger
	now    func() time.Time
}

// NewProductService creates a new instance of ProductService. Writes that
// touch a product row go through tx.
func NewProductService(repos repository.Repositories, tx repository.Transactor, logger *zap.Logger) ProductService {
	return &productService{
		repos:  repos,
		tx:     tx,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *productService) List(ctx context.Context) ([]*domain.Product, error) {
	return s.repos.Products.List(ctx)
}

func (s *productService) Get(ctx context.Context, id uuid.UUID) (*domain.Product, int, error) {
	product, err := s.repos.Products.FindByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	available, err := s.repos.Stock.Available(ctx, id, s.now())
	if err != nil {
		return nil, 0, err
	}

	return product, available, nil
}

func (s *productService) Create(ctx context.Context, input ProductInput) (*domain.Product, error) {
	now := s.now()
	product := &domain.Product{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Price:       input.Price,
		ImageURL:    input.ImageURL,
		Stock:       input.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := validateProduct(product); err != nil {
		return nil, err
	}

	if err := s.repos.Products.Create(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("name", product.Name),
		zap.Int("stock", product.Stock),
	)

	return product, nil
}

// Update applies a partial change under the product's row lock. Stock is
// written only when the patch sets it, so a price or name edit can never
// restore units a concurrent checkout has already sold.
func (s *productService) Update(ctx context.Context, id uuid.UUID, patch ProductPatch) (*domain.Product, error) {
	var product *domain.Product

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		product, err = repos.Products.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			product.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			product.Description = *patch.Description
		}
		if patch.Price != nil {
			product.Price = *patch.Price
		}
		if patch.ImageURL != nil {
			product.ImageURL = *patch.ImageURL
		}
		if patch.Stock != nil {
			product.Stock = *patch.Stock
		}
		product.UpdatedAt = s.now()

		if err := validateProduct(product); err != nil {
			return err
		}

		if patch.Stock != nil {
			return repos.Products.Update(ctx, product)
		}
		return repos.Products.UpdateDetails(ctx, product)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product updated",
		zap.String("product_id", product.ID.String()),
		zap.Bool("stock_set", patch.Stock != nil),
	)

	return product, nil
}

func (s *productService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repos.Products.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Product deleted", zap.String("product_id", id.String()))
	return nil
}

func validateProduct(p *domain.Product) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case len(p.Name) > maxProductNameLength:
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalidProduct, maxProductNameLength)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	}
	return nil
}
