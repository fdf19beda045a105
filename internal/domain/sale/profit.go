// internal/domain/sale/profit.go
package sale

import (
	"github.com/shopspring/decimal"
)

// LineProfitSummary is the realized result for one receipt position
type LineProfitSummary struct {
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
	Cost        decimal.Decimal `json:"cost"`
	Profit      decimal.Decimal `json:"profit"`
	// Estimated marks lines without allocation provenance (recorded before
	// the ledger existed) whose cost falls back to the product's current
	// average cost.
	Estimated bool `json:"estimated"`
}

// SaleProfitSummary aggregates a sale's realized cost and margin
type SaleProfitSummary struct {
	SaleID        uint                `json:"sale_id"`
	ReceiptNumber string              `json:"receipt_number"`
	Revenue       decimal.Decimal     `json:"revenue"`
	Cost          decimal.Decimal     `json:"cost"`
	Profit        decimal.Decimal     `json:"profit"`
	Margin        decimal.Decimal     `json:"margin"`
	Lines         []LineProfitSummary `json:"lines"`
}

// LineProfit computes realized profit for a line from its stored allocation
// provenance, so the reported number reflects the cost layer actually
// consumed rather than the catalog's current cost. currentCost is only used
// for pre-ledger lines with no allocations.
func LineProfit(line *SaleLine, currentCost decimal.Decimal) (profit, cost decimal.Decimal, estimated bool) {
	if allocated, ok := line.AllocatedCost(); ok {
		return line.LineTotal.Sub(allocated), allocated, false
	}
	cost = currentCost.Mul(decimal.NewFromInt(int64(line.Quantity)))
	return line.LineTotal.Sub(cost), cost, true
}

// SaleProfitMargin returns profit divided by revenue, or zero for zero
// revenue.
func SaleProfitMargin(profit, revenue decimal.Decimal) decimal.Decimal {
	if revenue.IsZero() {
		return decimal.Zero
	}
	return profit.Div(revenue)
}

// SaleProfit builds the profit summary for a stored sale
func (s *Service) SaleProfit(id uint) (*SaleProfitSummary, error) {
	record, err := s.GetSale(id)
	if err != nil {
		return nil, err
	}

	summary := &SaleProfitSummary{
		SaleID:        record.ID,
		ReceiptNumber: record.ReceiptNumber,
		Revenue:       decimal.Zero,
		Cost:          decimal.Zero,
		Profit:        decimal.Zero,
	}

	for i := range record.Lines {
		line := &record.Lines[i]

		currentCost := decimal.Zero
		if _, hasAllocations := line.AllocatedCost(); !hasAllocations {
			p, err := s.productService.GetProduct(line.ProductID)
			if err != nil {
				s.log.WithField("product_id", line.ProductID).WithError(err).
					Warn("cost fallback lookup failed; reporting zero cost for line")
			} else {
				currentCost = p.CostPrice
			}
		}

		profit, cost, estimated := LineProfit(line, currentCost)
		summary.Lines = append(summary.Lines, LineProfitSummary{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			Revenue:     line.LineTotal,
			Cost:        cost,
			Profit:      profit,
			Estimated:   estimated,
		})

		summary.Revenue = summary.Revenue.Add(line.LineTotal)
		summary.Cost = summary.Cost.Add(cost)
		summary.Profit = summary.Profit.Add(profit)
	}

	summary.Margin = SaleProfitMargin(summary.Profit, summary.Revenue)
	return summary, nil
}
