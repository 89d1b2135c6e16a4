package sessions

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
)

// MemoryStore keeps session codes in process memory
type MemoryStore struct {
	clock clockwork.Clock

	mu    sync.RWMutex
	codes map[string]*Session
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		clock: clock,
		codes: make(map[string]*Session),
	}
}

func (s *MemoryStore) Create(ctx context.Context, code, presenterID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.codes[code]; ok && existing.PresenterID != presenterID {
		return nil, ErrCodeTaken
	}
	for c, session := range s.codes {
		if session.PresenterID == presenterID {
			delete(s.codes, c)
		}
	}

	session := &Session{Code: code, PresenterID: presenterID, CreatedAt: s.clock.Now().UTC()}
	s.codes[code] = session
	copied := *session
	return &copied, nil
}

func (s *MemoryStore) Get(ctx context.Context, code string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *MemoryStore) GetByPresenter(ctx context.Context, presenterID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.codes {
		if session.PresenterID == presenterID {
			copied := *session
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}
