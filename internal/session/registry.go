package session

import (
	"sync"

	"github.com/google/uuid"
)

type ownerKey struct {
	examID uuid.UUID
	userID int
}

// Registry indexes live sessions by id and by (exam, user). A user has at most
// one live session per exam.
type Registry struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*Orchestrator
	byOwner map[ownerKey]*Orchestrator
}

func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[uuid.UUID]*Orchestrator),
		byOwner: make(map[ownerKey]*Orchestrator),
	}
}

// LoadOrCreate returns the live session of userID for examID, creating one with
// create when none exists. The boolean is true when an existing session was returned.
func (r *Registry) LoadOrCreate(examID uuid.UUID, userID int, create func() *Orchestrator) (*Orchestrator, bool) {
	key := ownerKey{examID: examID, userID: userID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.byOwner[key]; ok {
		return o, true
	}
	o := create()
	r.byID[o.ID()] = o
	r.byOwner[key] = o
	return o, false
}

func (r *Registry) Get(id uuid.UUID) (*Orchestrator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[id]
	return o, ok
}

// Lookup returns the live session of userID for examID.
func (r *Registry) Lookup(examID uuid.UUID, userID int) (*Orchestrator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byOwner[ownerKey{examID: examID, userID: userID}]
	return o, ok
}

// ForExam returns the live sessions of examID in no particular order.
func (r *Registry) ForExam(examID uuid.UUID) []*Orchestrator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Orchestrator
	for key, o := range r.byOwner {
		if key.examID == examID {
			out = append(out, o)
		}
	}
	return out
}

// Remove drops o if it is still the registered session for its owner.
func (r *Registry) Remove(o *Orchestrator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byID[o.ID()]; ok && cur == o {
		delete(r.byID, o.ID())
	}
	key := ownerKey{examID: o.Exam().ID, userID: o.UserID()}
	if cur, ok := r.byOwner[key]; ok && cur == o {
		delete(r.byOwner, key)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// CloseAll tears down every live session. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	live := make([]*Orchestrator, 0, len(r.byID))
	for _, o := range r.byID {
		live = append(live, o)
	}
	r.mu.RUnlock()

	for _, o := range live {
		o.Close()
	}
}
