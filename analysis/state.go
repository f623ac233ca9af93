package analysis

import (
	"sort"
	"sync"

	"github.com/pivolan/textile_dashboard/domain/models"
)

// SessionState is one user's analysis session. The zero value is an
// inactive session.
type SessionState struct {
	ID string

	mu      sync.Mutex
	active  bool
	busy    bool
	handle  Handle
	fileIDs []string
}

func NewSessionState(id string) *SessionState {
	return &SessionState{ID: id}
}

func (s *SessionState) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *SessionState) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *SessionState) Handle() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// FileIDs returns the uploaded reference ids.
func (s *SessionState) FileIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fileIDs...)
}

func (s *SessionState) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return models.ErrSessionBusy
	}
	s.busy = true
	return nil
}

func (s *SessionState) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *SessionState) activate(h Handle, fileIDs []string) {
	s.mu.Lock()
	s.active = true
	s.handle = h
	s.fileIDs = fileIDs
	s.mu.Unlock()
}

func (s *SessionState) reset() (Handle, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ids := s.handle, s.fileIDs
	s.active = false
	s.handle = Handle{}
	s.fileIDs = nil
	return h, ids
}

// States keeps session states by owner id: a cookie value or a chat id.
type States struct {
	mu     sync.Mutex
	states map[string]*SessionState
}

func NewStates() *States {
	return &States{states: make(map[string]*SessionState)}
}

// Get returns the state for id, creating an inactive one on first use.
func (r *States) Get(id string) *SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[id]
	if !ok {
		s = NewSessionState(id)
		r.states[id] = s
	}
	return s
}

func (r *States) Delete(id string) {
	r.mu.Lock()
	delete(r.states, id)
	r.mu.Unlock()
}

// Active returns the active sessions ordered by id.
func (r *States) Active() []*SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*SessionState
	for _, s := range r.states {
		if s.Active() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
