package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LowStockEvent is emitted after a committed change leaves a product at or below its alert level.
type LowStockEvent struct {
	ProductID     uuid.UUID       `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Quantity      int64           `json:"quantity"`
	Stock         decimal.Decimal `json:"stock"`
	LowStockAlert int64           `json:"low_stock_alert"`
	Source        string          `json:"source"`
	At            time.Time       `json:"at"`
}

// LowStockEvents builds events for every low product in products.
func LowStockEvents(products []Product, source string, at time.Time) []LowStockEvent {
	var events []LowStockEvent
	for _, p := range products {
		if !p.IsLowStock() {
			continue
		}
		events = append(events, LowStockEvent{
			ProductID:     p.ID,
			ProductName:   p.Name,
			Quantity:      p.Quantity,
			Stock:         p.Stock,
			LowStockAlert: p.LowStockAlert,
			Source:        source,
			At:            at,
		})
	}
	return events
}
