package domain

type StoreType string

const (
	StoreTypeStore            StoreType = "STORE"
	StoreTypeCentralWarehouse StoreType = "CENTRAL_WAREHOUSE"
)

// Store is a directory entry for one retail location or the central warehouse.
type Store struct {
	ID       string
	Name     string
	Location string
	Active   bool
	Type     StoreType
}
