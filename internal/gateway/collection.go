package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/taskdeck/taskdeck/internal/syncstore"
)

// Collection is a typed view over one gateway collection. It satisfies
// syncstore.Gateway for its entity type.
type Collection[T syncstore.Entity] struct {
	client   *Client
	realtime *Realtime
	name     string
}

// NewCollection binds a client and push channel to a collection name.
func NewCollection[T syncstore.Entity](client *Client, realtime *Realtime, name string) *Collection[T] {
	return &Collection[T]{client: client, realtime: realtime, name: name}
}

// Select fetches all matching records.
func (c *Collection[T]) Select(ctx context.Context, filter syncstore.Filter) ([]T, error) {
	rows, err := c.client.Select(ctx, c.name, filter)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, raw := range rows {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("gateway: decode %s record: %w", c.name, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Insert creates a record and returns the server-assigned row.
func (c *Collection[T]) Insert(ctx context.Context, record T) (T, error) {
	var out T
	raw, err := c.client.Insert(ctx, c.name, record)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("gateway: decode %s record: %w", c.name, err)
	}
	return out, nil
}

// Update patches a record and returns the server row.
func (c *Collection[T]) Update(ctx context.Context, id string, patch syncstore.Patch) (T, error) {
	var out T
	raw, err := c.client.Update(ctx, c.name, id, patch)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("gateway: decode %s record: %w", c.name, err)
	}
	return out, nil
}

// Delete removes a record.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.client.Delete(ctx, c.name, id)
}

// Subscribe registers a typed change-event callback on the push channel.
// Records that fail to decode are dropped with a warning.
func (c *Collection[T]) Subscribe(onEvent func(syncstore.EventType, T)) (func(), error) {
	unsub := c.realtime.Subscribe(c.name, func(typ syncstore.EventType, raw json.RawMessage) {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			c.client.logger.Warn("dropping undecodable change event",
				slog.String("collection", c.name), slog.String("type", string(typ)), slog.Any("error", err))
			return
		}
		onEvent(typ, rec)
	})
	return unsub, nil
}
