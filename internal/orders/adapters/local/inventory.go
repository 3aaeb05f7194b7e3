// Package local provides in-process collaborators for running checkout
// without external inventory or messaging systems.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dejobratic/orderflow/internal/orders/domain"
)

// Inventory treats every product as available unless a finite stock level was
// set for it with SetStock.
type Inventory struct {
	mu     sync.Mutex
	stock  map[string]int
	logger *slog.Logger
}

func NewInventory(logger *slog.Logger) *Inventory {
	return &Inventory{stock: make(map[string]int), logger: logger}
}

// SetStock limits productID to qty units.
func (i *Inventory) SetStock(productID string, qty int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stock[productID] = qty
}

func (i *Inventory) CheckAvailability(_ context.Context, item domain.OrderItem) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	available, limited := i.stock[item.ProductID]
	return !limited || available >= item.Quantity, nil
}

func (i *Inventory) Reserve(ctx context.Context, item domain.OrderItem) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if available, limited := i.stock[item.ProductID]; limited {
		if available < item.Quantity {
			return fmt.Errorf("reserve %s: %d requested, %d available", item.ProductID, item.Quantity, available)
		}
		i.stock[item.ProductID] = available - item.Quantity
	}
	i.logger.InfoContext(ctx, "stock reserved",
		"product_id", item.ProductID,
		"quantity", item.Quantity,
	)
	return nil
}
