package notification

import (
	"sync"
)

// List keeps notifications newest first. Notifications are unique by ID.
type List struct {
	mu    sync.RWMutex
	items []Notification
}

func NewList() *List {
	return &List{}
}

// Insert prepends n unless a notification with the same ID is present.
// Returns false for duplicates.
func (l *List) Insert(n Notification) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n.ID != "" && l.indexLocked(n.ID) >= 0 {
		return false
	}
	l.items = append([]Notification{n}, l.items...)
	return true
}

// Replace sets list content to an authoritative snapshot, dropping duplicate IDs.
func (l *List) Replace(items []Notification) {
	seen := make(map[string]struct{}, len(items))
	deduped := make([]Notification, 0, len(items))
	for _, n := range items {
		if n.ID != "" {
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
		}
		deduped = append(deduped, n)
	}
	l.mu.Lock()
	l.items = deduped
	l.mu.Unlock()
}

// MarkRead marks a notification as read. Returns false if there is no such ID.
func (l *List) MarkRead(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(id)
	if i < 0 {
		return false
	}
	l.items[i].IsRead = true
	return true
}

func (l *List) Items() []Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Notification(nil), l.items...)
}

func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Unread returns the number of unread notifications, ex. for a badge.
func (l *List) Unread() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	count := 0
	for _, n := range l.items {
		if !n.IsRead {
			count++
		}
	}
	return count
}

func (l *List) indexLocked(id string) int {
	for i, n := range l.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}
