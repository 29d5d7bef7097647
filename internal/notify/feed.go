// Package notify keeps a bounded, session-scoped feed of user-facing
// event records. Nothing is persisted; the feed lives and dies with the
// session that owns it.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxRecords bounds the feed; the oldest records are evicted first.
const MaxRecords = 50

// Category groups records for filtering in the UI.
type Category string

// Record categories emitted by mutation success paths.
const (
	CategoryTask    Category = "task"
	CategoryProject Category = "project"
	CategorySystem  Category = "system"
)

// Record is a single feed entry.
type Record struct {
	ID        string            `json:"id"`
	Category  Category          `json:"category"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
	Read      bool              `json:"read"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Feed is an append-ordered in-memory log, newest first.
type Feed struct {
	mu      sync.Mutex
	records []Record
	clock   func() time.Time
}

// NewFeed constructs an empty feed.
func NewFeed() *Feed {
	return &Feed{clock: time.Now}
}

// Append prepends a record, assigning id and timestamp, and evicts
// beyond MaxRecords. Returns the stored record.
func (f *Feed) Append(category Category, title, message string, metadata map[string]string) Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := Record{
		ID:        uuid.NewString(),
		Category:  category,
		Title:     title,
		Message:   message,
		CreatedAt: f.clock(),
		Metadata:  metadata,
	}
	f.records = append([]Record{rec}, f.records...)
	if len(f.records) > MaxRecords {
		f.records = f.records[:MaxRecords]
	}
	return rec
}

// List returns a snapshot of the feed, newest first.
func (f *Feed) List() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Record, len(f.records))
	copy(out, f.records)
	return out
}

// Unread returns the number of unread records.
func (f *Feed) Unread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if !r.Read {
			n++
		}
	}
	return n
}

// MarkRead flags one record as read. Unknown ids are ignored.
func (f *Feed) MarkRead(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].Read = true
			return
		}
	}
}

// MarkAllRead flags every record as read.
func (f *Feed) MarkAllRead() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		f.records[i].Read = true
	}
}

// Remove deletes one record. Unknown ids are ignored.
func (f *Feed) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return
		}
	}
}

// Clear empties the feed.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = nil
}
