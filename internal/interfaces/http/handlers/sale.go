// internal/interfaces/http/handlers/sale.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/pos-backend/internal/domain/sale"
	"github.com/your-org/pos-backend/internal/interfaces/http/middleware"
)

// SaleHandler handles sale endpoints
type SaleHandler struct {
	saleService *sale.Service
}

// NewSaleHandler creates a new sale handler
func NewSaleHandler(saleService *sale.Service) *SaleHandler {
	return &SaleHandler{
		saleService: saleService,
	}
}

// CreateSale records a sale, allocating stock oldest batch first
func (h *SaleHandler) CreateSale(c *gin.Context) {
	var req sale.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if req.Cashier == "" {
		if username, ok := middleware.GetUsernameFromContext(c); ok {
			req.Cashier = username
		}
	}

	record, err := h.saleService.CreateSale(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Sale recorded successfully",
		"data":    record,
	})
}

// GetSales lists sales newest-first
func (h *SaleHandler) GetSales(c *gin.Context) {
	var req sale.SaleListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query parameters",
			"details": err.Error(),
		})
		return
	}

	response, err := h.saleService.GetSales(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Sales retrieved successfully",
		"data":    response,
	})
}

// GetSale returns a sale with its lines and batch allocations
func (h *SaleHandler) GetSale(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		return
	}

	record, err := h.saleService.GetSale(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Sale retrieved successfully",
		"data":    record,
	})
}

// GetSaleProfit returns the realized profit breakdown for a sale
func (h *SaleHandler) GetSaleProfit(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		return
	}

	summary, err := h.saleService.SaleProfit(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Sale profit retrieved successfully",
		"data":    summary,
	})
}
