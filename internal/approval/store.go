package approval

import (
	"fmt"
	"sync"

	"mailcrew/internal/agent/ports"
)

// PendingStore tracks outstanding approval requests awaiting a human
// decision. Each request is resolved at most once; the waiting goroutine
// receives the decision on a buffered channel so resolvers never block.
type PendingStore struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry
}

type pendingEntry struct {
	request *ports.ApprovalRequest
	ch      chan ports.Decision
}

// NewPendingStore returns an empty store.
func NewPendingStore() *PendingStore {
	return &PendingStore{pending: make(map[string]*pendingEntry)}
}

// Add registers a request and returns the channel its decision will arrive on.
func (s *PendingStore) Add(request *ports.ApprovalRequest) (<-chan ports.Decision, error) {
	if request == nil || request.ID == "" {
		return nil, fmt.Errorf("approval request requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[request.ID]; exists {
		return nil, fmt.Errorf("approval request already pending: %s", request.ID)
	}
	entry := &pendingEntry{request: request, ch: make(chan ports.Decision, 1)}
	s.pending[request.ID] = entry
	return entry.ch, nil
}

// Resolve delivers the decision for a pending request. Unknown or already
// resolved ids return an error so the HTTP surface can answer 404.
func (s *PendingStore) Resolve(id string, decision ports.Decision) error {
	s.mu.Lock()
	entry, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending approval request: %s", id)
	}
	entry.ch <- decision
	return nil
}

// Remove drops a request without resolving it (timeout or cancelled run).
func (s *PendingStore) Remove(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// Get returns the pending request for an id, if any.
func (s *PendingStore) Get(id string) (*ports.ApprovalRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[id]
	if !ok {
		return nil, false
	}
	return entry.request, true
}

// PendingIDs returns the ids of all outstanding requests.
func (s *PendingStore) PendingIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of outstanding requests.
func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
