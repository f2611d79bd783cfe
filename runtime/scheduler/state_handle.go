package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AltairaLabs/remotemedia/runtime/statestore"
)

// nodeStateHandle adapts the single-blob-per-(node,session) statestore.Store
// to the node.StateHandle's multi-key view by storing a JSON object of
// key->value pairs as that blob.
type nodeStateHandle struct {
	store statestore.Store
	key   statestore.Key
	ttl   time.Duration
}

func newNodeStateHandle(store statestore.Store, nodeID, sessionID string, ttl time.Duration) *nodeStateHandle {
	return &nodeStateHandle{store: store, key: statestore.Key{NodeID: nodeID, SessionID: sessionID}, ttl: ttl}
}

func (h *nodeStateHandle) Get(ctx context.Context, field string) ([]byte, bool, error) {
	blob, ok, err := h.store.Get(ctx, h.key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	fields, err := decodeFields(blob)
	if err != nil {
		return nil, false, err
	}
	v, ok := fields[field]
	return v, ok, nil
}

func (h *nodeStateHandle) Set(ctx context.Context, field string, value []byte) error {
	return h.store.Update(ctx, h.key, h.ttl, func(current []byte) ([]byte, error) {
		fields, err := decodeFields(current)
		if err != nil {
			return nil, err
		}
		fields[field] = value
		return encodeFields(fields)
	})
}

func (h *nodeStateHandle) Delete(ctx context.Context, field string) error {
	return h.store.Update(ctx, h.key, h.ttl, func(current []byte) ([]byte, error) {
		fields, err := decodeFields(current)
		if err != nil {
			return nil, err
		}
		delete(fields, field)
		return encodeFields(fields)
	})
}

func decodeFields(blob []byte) (map[string][]byte, error) {
	if len(blob) == 0 {
		return map[string][]byte{}, nil
	}
	var fields map[string][]byte
	if err := json.Unmarshal(blob, &fields); err != nil {
		return nil, fmt.Errorf("scheduler: decode node state: %w", err)
	}
	return fields, nil
}

func encodeFields(fields map[string][]byte) ([]byte, error) {
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("scheduler: encode node state: %w", err)
	}
	return out, nil
}
