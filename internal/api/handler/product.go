package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timmy/vismatch/internal/domain"
	"github.com/timmy/vismatch/internal/service"
)

// ProductHandler handles catalog endpoints.
type ProductHandler struct {
	catalogService *service.CatalogService
	maxBytes       int64
}

// NewProductHandler creates a new product handler.
func NewProductHandler(catalogService *service.CatalogService, maxBytes int64) *ProductHandler {
	return &ProductHandler{catalogService: catalogService, maxBytes: maxBytes}
}

// List handles GET /api/products.
func (h *ProductHandler) List(c *gin.Context) {
	items, err := h.catalogService.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to load products")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"products": items,
		"total":    len(items),
	})
}

// Add handles POST /api/products/add with an image file or imageUrl plus
// name, category and price.
func (h *ProductHandler) Add(c *gin.Context) {
	input, form, err := readImageRequest(c, h.maxBytes)
	if err != nil {
		respondError(c, err, "Failed to read request")
		return
	}
	if strings.TrimSpace(form.Name) == "" {
		respondError(c, fmt.Errorf("%w: product name is required", domain.ErrInvalidInput), "")
		return
	}

	req := &service.AddProductRequest{
		Name:     form.Name,
		Category: form.Category,
		Image:    input,
	}
	if form.Price != nil {
		req.Price = *form.Price
	}

	item, err := h.catalogService.AddProduct(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to add product")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Product added successfully",
		"product": item,
	})
}
