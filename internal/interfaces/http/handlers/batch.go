// internal/interfaces/http/handlers/batch.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/pos-backend/internal/domain/batch"
)

// BatchHandler handles purchase batch endpoints
type BatchHandler struct {
	batchService *batch.Service
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(batchService *batch.Service) *BatchHandler {
	return &BatchHandler{
		batchService: batchService,
	}
}

// CreateBatch records a purchase batch
func (h *BatchHandler) CreateBatch(c *gin.Context) {
	var req batch.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	b, err := h.batchService.CreateBatch(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Batch created successfully",
		"data":    b,
	})
}

// CancelBatch cancels a batch and removes its remaining stock
func (h *BatchHandler) CancelBatch(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		return
	}

	b, err := h.batchService.CancelBatch(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Batch cancelled successfully",
		"data":    b,
	})
}
