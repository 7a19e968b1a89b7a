package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateProductRequest represents a new catalog entry
type CreateProductRequest struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"required,gte=0"`
	ImageURL    string           `json:"image_url" validate:"omitempty,url"`
	Stock       *int             `json:"stock" validate:"required,gte=0"`
}

// UpdateProductRequest carries only the fields to change
type UpdateProductRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	ImageURL    *string          `json:"image_url" validate:"omitempty,url"`
	Stock       *int             `json:"stock" validate:"omitempty,gte=0"`
}

// ProductDetail is a product with its advisory availability
type ProductDetail struct {
	Product   *domain.Product `json:"product"`
	Available int             `json:"available"`
}

// ProductHandler handles HTTP requests for the catalog
type ProductHandler struct {
	productService service.ProductService
	logger         *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(productService service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		logger:         logger,
	}
}

// RegisterRoutes registers the catalog routes. Reads are public; writes go
// through the admin middleware.
func (h *ProductHandler) RegisterRoutes(r chi.Router, admin ...func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(admin...)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.productService.List(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, http.StatusBadRequest)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	product, available, err := h.productService.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, http.StatusBadRequest)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ProductDetail{Product: product, Available: available})
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	product, err := h.productService.Create(r.Context(), service.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
		ImageURL:    req.ImageURL,
		Stock:       *req.Stock,
	})
	if err != nil {
		respondServiceError(w, h.logger, err, http.StatusBadRequest)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Product created",
		"product": product,
	})
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	product, err := h.productService.Update(r.Context(), id, service.ProductPatch{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		Stock:       req.Stock,
	})
	if err != nil {
		respondServiceError(w, h.logger, err, http.StatusBadRequest)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Product updated",
		"product": product,
	})
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.productService.Delete(r.Context(), id); err != nil {
		respondServiceError(w, h.logger, err, http.StatusBadRequest)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}
