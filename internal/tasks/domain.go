package tasks

import (
	"time"

	"github.com/taskdeck/taskdeck/internal/syncstore"
)

// Collection is the gateway collection name.
const Collection = "tasks"

// Status values for a task.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Priority values for a task.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task is a unit of work inside a project.
type Task struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Status        string     `json:"status"`
	Priority      string     `json:"priority"`
	AssigneeID    string     `json:"assignee_id,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	AttachmentURL string     `json:"attachment_url,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// EntityID implements syncstore.Entity.
func (t Task) EntityID() string { return t.ID }

// StoreConfig wires Task into the synchronization store.
func StoreConfig(actor func() string) syncstore.Config[Task] {
	return syncstore.Config[Task]{
		Collection: Collection,
		Actor:      actor,
		Stamp:      stamp,
		Merge:      merge,
	}
}

func stamp(t Task, id, owner string, now time.Time) Task {
	t.ID = id
	t.CreatedBy = owner
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	return t
}

func merge(t Task, patch syncstore.Patch, now time.Time) Task {
	if v, ok := patch["title"].(string); ok {
		t.Title = v
	}
	if v, ok := patch["description"].(string); ok {
		t.Description = v
	}
	if v, ok := patch["status"].(string); ok {
		t.Status = v
	}
	if v, ok := patch["priority"].(string); ok {
		t.Priority = v
	}
	if v, ok := patch["assignee_id"].(string); ok {
		t.AssigneeID = v
	}
	if v, ok := patch["attachment_url"].(string); ok {
		t.AttachmentURL = v
	}
	if v, ok := patch["due_date"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			t.DueDate = &parsed
		}
	}
	t.UpdatedAt = now
	return t
}
