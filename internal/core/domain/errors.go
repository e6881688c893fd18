package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInventoryNotFound     = errors.New("inventory not found")
	ErrStoreNotFound         = errors.New("store not found")
	ErrStoreAlreadyExists    = errors.New("store already exists")
	ErrSyncRunNotFound       = errors.New("sync run not found")
	ErrConflictNotFound      = errors.New("conflict not found")
	ErrValidation            = errors.New("validation failed")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrConflict              = errors.New("inventory conflict")
	ErrEventPublish          = errors.New("event publish failed")
	ErrUnknownStrategy       = errors.New("unknown conflict resolution strategy")
)

// InsufficientInventoryError rejects a decrement that would drive quantity below zero.
type InsufficientInventoryError struct {
	StoreID   string
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for store %s product %s: requested %d, available %d",
		e.StoreID, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Error codes exposed to API clients.
const (
	CodeInternal              = "INTERNAL_ERROR"
	CodeValidation            = "VALIDATION_ERROR"
	CodeInventoryNotFound     = "INVENTORY_NOT_FOUND"
	CodeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	CodeInventoryConflict     = "INVENTORY_UPDATE_CONFLICT"
	CodeStoreNotFound         = "STORE_NOT_FOUND"
	CodeStoreAlreadyExists    = "STORE_ALREADY_EXISTS"
	CodeNotFound              = "NOT_FOUND"
	CodeSyncFailed            = "SYNC_FAILED"
)

// ErrorCode maps an error to its API error code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownStrategy):
		return CodeValidation
	case errors.Is(err, ErrInventoryNotFound):
		return CodeInventoryNotFound
	case errors.Is(err, ErrInsufficientInventory):
		return CodeInsufficientInventory
	case errors.Is(err, ErrConflict):
		return CodeInventoryConflict
	case errors.Is(err, ErrStoreNotFound):
		return CodeStoreNotFound
	case errors.Is(err, ErrStoreAlreadyExists):
		return CodeStoreAlreadyExists
	case errors.Is(err, ErrSyncRunNotFound), errors.Is(err, ErrConflictNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
