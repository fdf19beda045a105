// internal/interfaces/http/handlers/report.go
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/your-org/pos-backend/internal/domain/report"
)

// ReportHandler handles reporting endpoints
type ReportHandler struct {
	reportService *report.Service
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportService *report.Service) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
	}
}

// GetProfitReport returns realized profit over an optional date range
func (h *ReportHandler) GetProfitReport(c *gin.Context) {
	from, ok := parseTimeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeQuery(c, "to")
	if !ok {
		return
	}

	result, err := h.reportService.Profit(from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profit report generated successfully",
		"data":    result,
	})
}

// GetDashboard returns the cached store overview
func (h *ReportHandler) GetDashboard(c *gin.Context) {
	dashboard, err := h.reportService.GetDashboard(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Dashboard retrieved successfully",
		"data":    dashboard,
	})
}

// parseTimeQuery parses an optional RFC3339 or date-only query parameter,
// writing the error response itself on failure
func parseTimeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, true
		}
	}

	c.JSON(http.StatusBadRequest, gin.H{
		"error": "Invalid " + name + " parameter, expected RFC3339 or YYYY-MM-DD",
	})
	return nil, false
}
