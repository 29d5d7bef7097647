// Package syncstore maintains an authoritative local collection for one
// entity type, interleaving optimistic local mutations with asynchronous
// remote change events. Failed writes are rolled back; failed reads keep
// the previous collection.
package syncstore

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// EventType classifies a remote change event.
type EventType string

// Remote change event types delivered by the gateway push channel.
const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Patch is a partial update payload applied field-by-field.
type Patch map[string]any

// Filter narrows a collection fetch, e.g. {"project_id": "..."}.
type Filter map[string]string

// Entity is the minimal contract a synchronized record must satisfy.
type Entity interface {
	EntityID() string
}

// Gateway is the remote data source a store reconciles against.
type Gateway[T Entity] interface {
	Select(ctx context.Context, filter Filter) ([]T, error)
	Insert(ctx context.Context, record T) (T, error)
	Update(ctx context.Context, id string, patch Patch) (T, error)
	Delete(ctx context.Context, id string) error
	// Subscribe registers a change-event callback and returns an
	// unsubscribe func. Events are delivered in gateway order.
	Subscribe(onEvent func(EventType, T)) (func(), error)
}

// TempIDPrefix marks locally generated placeholder identifiers.
const TempIDPrefix = "temp-"

// NewTempID returns a placeholder id for an unconfirmed create.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id is a local placeholder.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
