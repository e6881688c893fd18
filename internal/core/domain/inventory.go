package domain

import "time"

// CentralStoreID is the reserved store id of the central ledger.
const CentralStoreID = "STORE-000"

// reservedProductIDs name the per-store listing routes of the HTTP API.
var reservedProductIDs = map[string]bool{
	"products":  true,
	"low-stock": true,
	"summary":   true,
}

// IsReservedProductID reports whether id cannot name a product.
func IsReservedProductID(id string) bool {
	return reservedProductIDs[id]
}

// DefaultLowStockThreshold is the quantity at or below which a product counts as low stock.
const DefaultLowStockThreshold = 10

type Key struct {
	StoreID   string
	ProductID string
}

func (k Key) String() string {
	return k.StoreID + ":" + k.ProductID
}

type InventoryRecord struct {
	StoreID     string
	ProductID   string
	Quantity    int
	LastUpdated time.Time
}

func (r InventoryRecord) Key() Key {
	return Key{StoreID: r.StoreID, ProductID: r.ProductID}
}

type InventorySummary struct {
	StoreID         string
	TotalProducts   int
	TotalQuantity   int
	LowStockCount   int
	OutOfStockCount int
	GeneratedAt     time.Time
}
