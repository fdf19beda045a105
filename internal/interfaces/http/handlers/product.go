// internal/interfaces/http/handlers/product.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/pos-backend/internal/domain/batch"
	"github.com/your-org/pos-backend/internal/domain/product"
)

// ProductHandler handles catalog endpoints
type ProductHandler struct {
	productService *product.Service
	batchService   *batch.Service
}

// NewProductHandler creates a new product handler
func NewProductHandler(productService *product.Service, batchService *batch.Service) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		batchService:   batchService,
	}
}

// GetProducts lists catalog products
func (h *ProductHandler) GetProducts(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"

	products, err := h.productService.GetProducts(includeInactive)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Products retrieved successfully",
		"data":    products,
	})
}

// GetProduct returns a single product
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		return
	}

	p, err := h.productService.GetProduct(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product retrieved successfully",
		"data":    p,
	})
}

// CreateProduct creates a catalog product
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req product.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	p, err := h.productService.CreateProduct(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Product created successfully",
		"data":    p,
	})
}

// UpdateProduct applies a partial update to a product
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		return
	}

	var req product.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	p, err := h.productService.UpdateProduct(id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product updated successfully",
		"data":    p,
	})
}

// GetProductBatches lists a product's purchase batches in FIFO order
func (h *ProductHandler) GetProductBatches(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		return
	}

	includeEmpty := c.Query("include_empty") == "true"

	batches, err := h.batchService.ListForProduct(id, includeEmpty)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Batches retrieved successfully",
		"data":    batches,
	})
}

// parseIDParam parses the :id path parameter, writing the error response
// itself on failure
func parseIDParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid id parameter",
		})
		return 0, err
	}
	return uint(id), nil
}
