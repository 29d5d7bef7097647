package projects

import (
	"time"

	"github.com/taskdeck/taskdeck/internal/syncstore"
)

// Collection is the gateway collection name.
const Collection = "projects"

// Status values for a project.
const (
	StatusPlanning = "planning"
	StatusActive   = "active"
	StatusOnHold   = "on_hold"
	StatusComplete = "completed"
)

// Project is a top-level unit of team work.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EntityID implements syncstore.Entity.
func (p Project) EntityID() string { return p.ID }

// StoreConfig wires Project into the synchronization store. actor
// supplies the current identity id for ownership stamping.
func StoreConfig(actor func() string) syncstore.Config[Project] {
	return syncstore.Config[Project]{
		Collection: Collection,
		Actor:      actor,
		Stamp:      stamp,
		Merge:      merge,
	}
}

func stamp(p Project, id, owner string, now time.Time) Project {
	p.ID = id
	p.CreatedBy = owner
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = StatusPlanning
	}
	return p
}

func merge(p Project, patch syncstore.Patch, now time.Time) Project {
	if v, ok := patch["name"].(string); ok {
		p.Name = v
	}
	if v, ok := patch["description"].(string); ok {
		p.Description = v
	}
	if v, ok := patch["status"].(string); ok {
		p.Status = v
	}
	p.UpdatedAt = now
	return p
}
