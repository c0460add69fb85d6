package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fjod/go_shop/pkg/httpx"
	"github.com/fjod/go_shop/product-service/internal/domain"
	"github.com/fjod/go_shop/product-service/internal/repository"
	"github.com/fjod/go_shop/product-service/internal/service"
	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

type ProductService interface {
	CreateProduct(ctx context.Context, p *domain.Product) (*domain.Product, error)
	CreateProducts(ctx context.Context, products []*domain.Product) ([]*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	GetAllProducts(ctx context.Context) ([]*domain.Product, error)
	GetProductsPage(ctx context.Context, page, size int) (*repository.Page, error)
	SearchProductsByName(ctx context.Context, name string) ([]*domain.Product, error)
	GetProductsByCategory(ctx context.Context, category string) ([]*domain.Product, error)
	GetProductsByBrand(ctx context.Context, brand string) ([]*domain.Product, error)
	GetProductsByTag(ctx context.Context, tag string) ([]*domain.Product, error)
	GetProductsByPriceRange(ctx context.Context, minPrice, maxPrice decimal.Decimal) ([]*domain.Product, error)
	GetAvailableProducts(ctx context.Context) ([]*domain.Product, error)
	GetTopRatedProducts(ctx context.Context, limit int) ([]*domain.Product, error)
	GetLatestProducts(ctx context.Context, limit int) ([]*domain.Product, error)
	GetRecommendedProducts(ctx context.Context, category string, limit int) ([]*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, p *domain.Product) (*domain.Product, error)
	UpdateStock(ctx context.Context, id string, stock int) (*domain.Product, error)
	UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (*domain.Product, error)
	UpdateStatus(ctx context.Context, id, status string) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

type ProductsHandler struct {
	svc      ProductService
	validate *validatorv10.Validate
	log      logrus.FieldLogger
}

func NewProductsHandler(svc ProductService, log logrus.FieldLogger) *ProductsHandler {
	return &ProductsHandler{
		svc:      svc,
		validate: httpx.NewValidator(),
		log:      log,
	}
}

type ProductRequest struct {
	Name           string          `json:"name" validate:"required"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	Brand          string          `json:"brand"`
	Price          decimal.Decimal `json:"price" validate:"gte=0"`
	Stock          int             `json:"stock"`
	Status         string          `json:"status"`
	Tags           []string        `json:"tags"`
	ImageURL       string          `json:"imageUrl"`
	SKU            string          `json:"sku"`
	Rating         float64         `json:"rating" validate:"gte=0,lte=5"`
	ReviewCount    int             `json:"reviewCount" validate:"gte=0"`
	Specifications string          `json:"specifications"`
}

func (req *ProductRequest) toDomain() *domain.Product {
	return &domain.Product{
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		Brand:          req.Brand,
		Price:          req.Price,
		Stock:          req.Stock,
		Status:         domain.Status(req.Status),
		Tags:           req.Tags,
		ImageURL:       req.ImageURL,
		SKU:            req.SKU,
		Rating:         req.Rating,
		ReviewCount:    req.ReviewCount,
		Specifications: req.Specifications,
	}
}

func (h *ProductsHandler) Routes(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Post("/batch", h.CreateProducts)
		r.Get("/search", h.SearchProducts)
		r.Get("/available", h.ListAvailable)
		r.Get("/top-rated", h.ListTopRated)
		r.Get("/latest", h.ListLatest)
		r.Get("/price-range", h.ListByPriceRange)
		r.Get("/sku/{sku}", h.GetProductBySKU)
		r.Get("/category/{category}", h.ListByCategory)
		r.Get("/brand/{brand}", h.ListByBrand)
		r.Get("/tag/{tag}", h.ListByTag)
		r.Get("/recommended/{category}", h.ListRecommended)
		r.Get("/{id}", h.GetProduct)
		r.Put("/{id}", h.UpdateProduct)
		r.Patch("/{id}/stock", h.UpdateStock)
		r.Patch("/{id}/price", h.UpdatePrice)
		r.Patch("/{id}/status", h.UpdateStatus)
		r.Delete("/{id}", h.DeleteProduct)
	})
}

// POST /api/products
func (h *ProductsHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := httpx.BindAndValidate(w, r, &req, h.validate); err != nil {
		return
	}

	p, err := h.svc.CreateProduct(r.Context(), req.toDomain())
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, p)
}

// POST /api/products/batch
func (h *ProductsHandler) CreateProducts(w http.ResponseWriter, r *http.Request) {
	var reqs []ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	products := make([]*domain.Product, 0, len(reqs))
	for i := range reqs {
		if err := h.validate.Struct(&reqs[i]); err != nil {
			httpx.RespondError(w, http.StatusBadRequest, "validation_failed", fmt.Sprintf("product %d: %v", i, err))
			return
		}
		products = append(products, reqs[i].toDomain())
	}

	created, err := h.svc.CreateProducts(r.Context(), products)
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, created)
}

// GET /api/products, paginated when page or size is given
func (h *ProductsHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("page") == "" && q.Get("size") == "" {
		products, err := h.svc.GetAllProducts(r.Context())
		h.respondList(w, products, err)
		return
	}

	page, err := intParam(r, "page", 0)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_page", err.Error())
		return
	}
	size, err := intParam(r, "size", service.DefaultLimit)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_page", err.Error())
		return
	}

	result, err := h.svc.GetProductsPage(r.Context(), page, size)
	if err != nil {
		h.handleError(w, err)
		return
	}
	result.Content = nonNil(result.Content)
	httpx.RespondJSON(w, http.StatusOK, result)
}

// GET /api/products/{id}
func (h *ProductsHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProductByID(r.Context(), chi.URLParam(r, "id"))
	h.respondOne(w, p, err)
}

// GET /api/products/sku/{sku}
func (h *ProductsHandler) GetProductBySKU(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProductBySKU(r.Context(), chi.URLParam(r, "sku"))
	h.respondOne(w, p, err)
}

// GET /api/products/search?name=
func (h *ProductsHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_query", "name is required")
		return
	}
	products, err := h.svc.SearchProductsByName(r.Context(), name)
	h.respondList(w, products, err)
}

// GET /api/products/category/{category}
func (h *ProductsHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.GetProductsByCategory(r.Context(), chi.URLParam(r, "category"))
	h.respondList(w, products, err)
}

// GET /api/products/brand/{brand}
func (h *ProductsHandler) ListByBrand(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.GetProductsByBrand(r.Context(), chi.URLParam(r, "brand"))
	h.respondList(w, products, err)
}

// GET /api/products/tag/{tag}
func (h *ProductsHandler) ListByTag(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.GetProductsByTag(r.Context(), chi.URLParam(r, "tag"))
	h.respondList(w, products, err)
}

// GET /api/products/price-range?minPrice=&maxPrice=
func (h *ProductsHandler) ListByPriceRange(w http.ResponseWriter, r *http.Request) {
	minPrice, err := decimalParam(r, "minPrice")
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_price", err.Error())
		return
	}
	maxPrice, err := decimalParam(r, "maxPrice")
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_price", err.Error())
		return
	}

	products, err := h.svc.GetProductsByPriceRange(r.Context(), minPrice, maxPrice)
	h.respondList(w, products, err)
}

// GET /api/products/available
func (h *ProductsHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.GetAvailableProducts(r.Context())
	h.respondList(w, products, err)
}

// GET /api/products/top-rated?limit=10
func (h *ProductsHandler) ListTopRated(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	products, err := h.svc.GetTopRatedProducts(r.Context(), limit)
	h.respondList(w, products, err)
}

// GET /api/products/latest?limit=10
func (h *ProductsHandler) ListLatest(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	products, err := h.svc.GetLatestProducts(r.Context(), limit)
	h.respondList(w, products, err)
}

// GET /api/products/recommended/{category}?limit=10
func (h *ProductsHandler) ListRecommended(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	products, err := h.svc.GetRecommendedProducts(r.Context(), chi.URLParam(r, "category"), limit)
	h.respondList(w, products, err)
}

// PUT /api/products/{id}
func (h *ProductsHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := httpx.BindAndValidate(w, r, &req, h.validate); err != nil {
		return
	}

	p, err := h.svc.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req.toDomain())
	h.respondOne(w, p, err)
}

// PATCH /api/products/{id}/stock?stock=N
func (h *ProductsHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("stock")
	stock, err := strconv.Atoi(raw)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_stock", fmt.Sprintf("stock must be an integer, got %q", raw))
		return
	}

	p, err := h.svc.UpdateStock(r.Context(), chi.URLParam(r, "id"), stock)
	h.respondOne(w, p, err)
}

// PATCH /api/products/{id}/price?price=P
func (h *ProductsHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	price, err := decimalParam(r, "price")
	if err == nil && price.IsNegative() {
		err = errors.New("price must not be negative")
	}
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_price", err.Error())
		return
	}

	p, err := h.svc.UpdatePrice(r.Context(), chi.URLParam(r, "id"), price)
	h.respondOne(w, p, err)
}

// PATCH /api/products/{id}/status?status=S
func (h *ProductsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("status"))
	h.respondOne(w, p, err)
}

// DELETE /api/products/{id}
func (h *ProductsHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *ProductsHandler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, err := intParam(r, "limit", service.DefaultLimit)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return 0, false
	}
	return limit, true
}

func (h *ProductsHandler) respondOne(w http.ResponseWriter, p *domain.Product, err error) {
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) respondList(w http.ResponseWriter, products []*domain.Product, err error) {
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, nonNil(products))
}

func (h *ProductsHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		httpx.RespondError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidStatus):
		httpx.RespondError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, service.ErrInvalidPage):
		httpx.RespondError(w, http.StatusBadRequest, "invalid_page", err.Error())
	case errors.Is(err, service.ErrInvalidLimit):
		httpx.RespondError(w, http.StatusBadRequest, "invalid_limit", err.Error())
	case errors.Is(err, service.ErrInvalidPriceRange):
		httpx.RespondError(w, http.StatusBadRequest, "invalid_price", err.Error())
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		h.log.WithError(err).Warn("search store unavailable")
		httpx.RespondError(w, http.StatusServiceUnavailable, "store_unavailable", "product store temporarily unavailable")
	default:
		h.log.WithError(err).Error("product request failed")
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

func decimalParam(r *http.Request, name string) (decimal.Decimal, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%s is required", name)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a number, got %q", name, raw)
	}
	return d, nil
}

func nonNil(products []*domain.Product) []*domain.Product {
	if products == nil {
		return []*domain.Product{}
	}
	return products
}
