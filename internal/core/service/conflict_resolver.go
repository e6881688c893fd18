package service

import (
	"fmt"
	"math"
	"time"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

// ConflictResolver decides between a store observation and the central
// ledger. It has no state and no side effects.
type ConflictResolver struct{}

func (ConflictResolver) Resolve(storeQty int, storeTs time.Time, centralQty int, centralTs time.Time, strategy domain.ConflictResolutionStrategy) (domain.Outcome, error) {
	storeWins := domain.Outcome{Kind: domain.OutcomeStoreDataUsed, Quantity: storeQty}
	centralWins := domain.Outcome{Kind: domain.OutcomeCentralDataUsed, Quantity: centralQty}

	switch strategy {
	case domain.LastWriteWins:
		switch {
		case storeTs.After(centralTs):
			return storeWins, nil
		case centralTs.After(storeTs):
			return centralWins, nil
		case storeQty > centralQty:
			return storeWins, nil
		default:
			return centralWins, nil
		}
	case domain.HigherQuantityWins:
		if storeQty > centralQty {
			return storeWins, nil
		}
		return centralWins, nil
	case domain.LowerQuantityWins:
		if storeQty < centralQty {
			return storeWins, nil
		}
		return centralWins, nil
	case domain.StorePriority:
		return storeWins, nil
	case domain.CentralPriority:
		return centralWins, nil
	case domain.MergeQuantities:
		if storeQty > math.MaxInt-centralQty {
			return domain.Outcome{}, &domain.ValidationError{Field: "quantity", Reason: "merged quantity exceeds the largest storable quantity"}
		}
		return domain.Outcome{Kind: domain.OutcomeMerge, Quantity: storeQty + centralQty}, nil
	case domain.ManualReview:
		return domain.Outcome{Kind: domain.OutcomeManual}, nil
	default:
		return domain.Outcome{}, fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, strategy)
	}
}
