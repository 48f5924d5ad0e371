package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "pricewatch/internal/errors"
	"pricewatch/internal/models"
	"pricewatch/internal/pagination"
	"pricewatch/internal/services"
)

// ProductReader is the read side of the catalog served over HTTP.
type ProductReader interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, alias string) (*models.Product, error)
	HistoryByAlias(ctx context.Context, alias string, page pagination.PageRequest) (*pagination.PageResponse[services.AliasObservation], error)
	BestPricesPerUnit(ctx context.Context, alias string, limit int) ([]services.UnitPrice, error)
}

// ProductHandler serves read-only product and price history endpoints.
type ProductHandler struct {
	catalog ProductReader
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(catalog ProductReader) *ProductHandler {
	return &ProductHandler{catalog: catalog}
}

// ListProducts returns every product with its presentations and stores.
// GET /api/v1/products
func (h *ProductHandler) ListProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}

// GetProduct returns one product by alias.
// GET /api/v1/products/:alias
func (h *ProductHandler) GetProduct(c *gin.Context) {
	alias, err := parseAlias(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), alias)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"product": product})
}

// GetHistory returns paginated observations across all stores of a product,
// most recent first.
// GET /api/v1/products/:alias/history?page=&page_size=
func (h *ProductHandler) GetHistory(c *gin.Context) {
	alias, err := parseAlias(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.catalog.HistoryByAlias(c.Request.Context(), alias, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetBestPrices returns the lowest price per unit seen at each store.
// GET /api/v1/products/:alias/best?limit=
func (h *ProductHandler) GetBestPrices(c *gin.Context) {
	alias, err := parseAlias(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	limit, err := parseLimit(c, pagination.MaxPageSize)
	if err != nil {
		respondWithError(c, err)
		return
	}

	best, err := h.catalog.BestPricesPerUnit(c.Request.Context(), alias, limit)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"alias": alias, "best": best})
}
