package service

import (
	"encoding/json"
	"fmt"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

func EncodeChangeEvent(e domain.ChangeEvent) (port.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return port.Message{}, fmt.Errorf("encode change event: %w", err)
	}
	return port.Message{ID: e.EventID, Key: e.Key().String(), Payload: payload}, nil
}

func DecodeChangeEvent(msg port.Message) (domain.ChangeEvent, error) {
	var e domain.ChangeEvent
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return e, fmt.Errorf("decode change event %s: %w", msg.ID, err)
	}
	if e.EventID == "" || e.ProductID == "" {
		return e, fmt.Errorf("decode change event %s: missing event or product id", msg.ID)
	}
	return e, nil
}

func EncodeStoreEvent(e domain.StoreEvent) (port.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return port.Message{}, fmt.Errorf("encode store event: %w", err)
	}
	return port.Message{ID: e.EventID, Key: e.StoreID, Payload: payload}, nil
}

func DecodeStoreEvent(msg port.Message) (domain.StoreEvent, error) {
	var e domain.StoreEvent
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return e, fmt.Errorf("decode store event %s: %w", msg.ID, err)
	}
	return e, nil
}
