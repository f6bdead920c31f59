package proctor

import (
	"sort"
	"sync"
)

// Registry indexes the live controllers by attempt id.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Controller
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Controller)}
}

// Add registers c. It returns false if the attempt id is already live.
func (r *Registry) Add(c *Controller) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := c.sess.AttemptID
	if _, ok := r.byID[id]; ok {
		return false
	}
	r.byID[id] = c
	return true
}

// Remove drops c if it is still the registered controller for its attempt.
func (r *Registry) Remove(c *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byID[c.sess.AttemptID] == c {
		delete(r.byID, c.sess.AttemptID)
	}
}

// Get returns the controller for an attempt.
func (r *Registry) Get(attemptID string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[attemptID]
	return c, ok
}

// Len is the number of live attempts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// List returns snapshots of every live attempt, oldest update first.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out
}
