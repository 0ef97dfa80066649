// Package session implements the in-memory side of the poll lifecycle: the
// concurrent registry of active poll sessions, the timer task that closes and
// eventually evicts each session, and the live-update fan-out. Durable data
// stays in the database package; a session only knows whether its poll is
// still open.
package session

import (
	"errors"
	"sync"
	"time"

	"timed-voting-backend/models"

	"github.com/google/uuid"
)

// ErrSessionExists 外部ID碰撞。ID由128位随机UUID生成，碰撞属于程序缺陷而非
// 可恢复的用户错误。
var ErrSessionExists = errors.New("session id already registered")

// PollSession is the in-memory representation of one active poll. It is owned
// exclusively by the Registry: handlers read it through views, only the
// lifecycle task mutates its state, and nobody holds a reference across
// requests.
type PollSession struct {
	externalID  string
	pollID      uint
	state       models.PollState
	createdAt   time.Time
	votingTime  time.Duration
	broadcaster *Broadcaster
}

// View is a copy of a session's readable fields, safe to hold after the
// registry lock is released.
type View struct {
	ExternalID string
	PollID     uint
	State      models.PollState
	CreatedAt  time.Time
	VotingTime time.Duration
}

// Registry maps external poll handles to live sessions. All access goes
// through its methods; the internal lock is never held across I/O.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*PollSession
}

// NewRegistry creates an empty registry. One per process, built in main and
// injected into handlers and schedulers.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*PollSession)}
}

// CreateSession registers a new session for a freshly persisted poll and
// returns its external handle. The handle is a random UUID, never the durable
// integer id, so durable ids cannot be enumerated from the outside.
func (r *Registry) CreateSession(pollID uint, votingTime time.Duration) (string, error) {
	id := uuid.NewString()
	s := &PollSession{
		externalID:  id,
		pollID:      pollID,
		state:       models.PollStarted,
		createdAt:   time.Now(),
		votingTime:  votingTime,
		broadcaster: NewBroadcaster(),
	}
	if err := r.insert(id, s); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Registry) insert(id string, s *PollSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return ErrSessionExists
	}
	r.sessions[id] = s
	return nil
}

// Get returns a copy of the session's readable state. ok is false when the
// session was evicted or never existed; callers must treat both the same.
func (r *Registry) Get(id string) (View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return View{}, false
	}
	return View{
		ExternalID: s.externalID,
		PollID:     s.pollID,
		State:      s.state,
		CreatedAt:  s.createdAt,
		VotingTime: s.votingTime,
	}, true
}

// MutateState atomically updates the lifecycle state. A missing id is a
// no-op: the session was already evicted and the caller sees "not found"
// through Get, never an error here.
func (r *Registry) MutateState(id string, state models.PollState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.state = state
	}
}

// Remove evicts a session and closes its fan-out so attached subscribers see
// a finite sequence. Idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	// 在锁外关闭广播器，注册表锁不跨越任何可能变慢的操作
	if ok {
		s.broadcaster.Close()
	}
}

// Subscribe attaches a live-update subscriber to a session's fan-out.
// Subscribing does not extend the session's lifetime: the channel simply
// closes when the session is evicted.
func (r *Registry) Subscribe(id string) (<-chan TallySnapshot, func(), bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	ch, cancel := s.broadcaster.Subscribe()
	return ch, cancel, true
}

// Publish fans a tally snapshot out to the session's subscribers. Publishing
// to an evicted session is a silent no-op.
func (r *Registry) Publish(id string, snap TallySnapshot) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	snap.PollID = id
	s.broadcaster.Publish(snap)
}

// Views returns a snapshot of all live sessions, for list endpoints.
func (r *Registry) Views() []View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	views := make([]View, 0, len(r.sessions))
	for _, s := range r.sessions {
		views = append(views, View{
			ExternalID: s.externalID,
			PollID:     s.pollID,
			State:      s.state,
			CreatedAt:  s.createdAt,
			VotingTime: s.votingTime,
		})
	}
	return views
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
