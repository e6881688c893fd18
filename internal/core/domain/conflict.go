package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ConflictResolutionStrategy string

const (
	LastWriteWins      ConflictResolutionStrategy = "LAST_WRITE_WINS"
	HigherQuantityWins ConflictResolutionStrategy = "HIGHER_QUANTITY_WINS"
	LowerQuantityWins  ConflictResolutionStrategy = "LOWER_QUANTITY_WINS"
	ManualReview       ConflictResolutionStrategy = "MANUAL_REVIEW"
	StorePriority      ConflictResolutionStrategy = "STORE_PRIORITY"
	CentralPriority    ConflictResolutionStrategy = "CENTRAL_PRIORITY"
	MergeQuantities    ConflictResolutionStrategy = "MERGE_QUANTITIES"
)

var strategyDescriptions = map[ConflictResolutionStrategy]string{
	LastWriteWins:      "Last Write Wins",
	HigherQuantityWins: "Higher Quantity Wins",
	LowerQuantityWins:  "Lower Quantity Wins",
	ManualReview:       "Manual Review Required",
	StorePriority:      "Store Priority",
	CentralPriority:    "Central Priority",
	MergeQuantities:    "Merge Quantities",
}

func (s ConflictResolutionStrategy) Valid() bool {
	_, ok := strategyDescriptions[s]
	return ok
}

func (s ConflictResolutionStrategy) Description() string {
	if d, ok := strategyDescriptions[s]; ok {
		return d
	}
	return string(s)
}

// ParseStrategy accepts the enum name in any case.
func ParseStrategy(s string) (ConflictResolutionStrategy, error) {
	strategy := ConflictResolutionStrategy(strings.ToUpper(strings.TrimSpace(s)))
	if !strategy.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
	return strategy, nil
}

type OutcomeKind string

const (
	OutcomeStoreDataUsed   OutcomeKind = "STORE_DATA_USED"
	OutcomeCentralDataUsed OutcomeKind = "CENTRAL_DATA_USED"
	OutcomeMerge           OutcomeKind = "MERGE"
	OutcomeManual          OutcomeKind = "MANUAL"
)

// Outcome is the decision for one conflict. Quantity is the winning quantity
// and is meaningless for OutcomeManual.
type Outcome struct {
	Kind     OutcomeKind
	Quantity int
}

type InventoryConflict struct {
	ID                   string
	StoreID              string
	ProductID            string
	StoreQuantity        int
	CentralQuantity      int
	StoreTimestamp       time.Time
	CentralTimestamp     time.Time
	DetectedAt           time.Time
	Resolved             bool
	RequiresManualReview bool
	Strategy             ConflictResolutionStrategy
	Outcome              OutcomeKind
	ResolvedAt           *time.Time
	Notes                string
}

func NewInventoryConflict(store, central InventoryRecord, strategy ConflictResolutionStrategy, now time.Time) *InventoryConflict {
	return &InventoryConflict{
		ID:               uuid.NewString(),
		StoreID:          store.StoreID,
		ProductID:        store.ProductID,
		StoreQuantity:    store.Quantity,
		CentralQuantity:  central.Quantity,
		StoreTimestamp:   store.LastUpdated,
		CentralTimestamp: central.LastUpdated,
		DetectedAt:       now,
		Strategy:         strategy,
	}
}

func (c *InventoryConflict) MarkResolved(outcome OutcomeKind, notes string, now time.Time) {
	c.Resolved = true
	c.RequiresManualReview = false
	c.Outcome = outcome
	c.Notes = notes
	c.ResolvedAt = &now
}
