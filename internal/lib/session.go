package lib

import (
    "context"
    "sync"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

// MemorySessions keeps sessions in process memory. Callers get copies, so a
// session only changes through Set.
type MemorySessions struct {
    mu sync.Mutex
    m  map[int64]*model.ChatSession
}

func NewMemorySessions() *MemorySessions {
    return &MemorySessions{m: map[int64]*model.ChatSession{}}
}

func (s *MemorySessions) Get(_ context.Context, chatID int64) (*model.ChatSession, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    sess, ok := s.m[chatID]
    if !ok {
        sess = model.NewChatSession()
        s.m[chatID] = sess
    }
    return sess.Clone(), nil
}

func (s *MemorySessions) Set(_ context.Context, chatID int64, sess *model.ChatSession) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.m[chatID] = sess.Clone()
    return nil
}

func (s *MemorySessions) Clear(_ context.Context, chatID int64) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    sess, ok := s.m[chatID]
    if !ok {
        s.m[chatID] = model.NewChatSession()
        return nil
    }
    sess.Reset()
    return nil
}

// chatLocks hands out one mutex per chat and forgets it when nobody holds or waits for it.
type chatLocks struct {
    mu sync.Mutex
    m  map[int64]*chatLock
}

type chatLock struct {
    mu   sync.Mutex
    refs int
}

func newChatLocks() *chatLocks {
    return &chatLocks{m: map[int64]*chatLock{}}
}

func (l *chatLocks) lock(chatID int64) (unlock func()) {
    l.mu.Lock()
    cl, ok := l.m[chatID]
    if !ok {
        cl = &chatLock{}
        l.m[chatID] = cl
    }
    cl.refs++
    l.mu.Unlock()

    cl.mu.Lock()
    return func() {
        cl.mu.Unlock()
        l.mu.Lock()
        cl.refs--
        if cl.refs == 0 {
            delete(l.m, chatID)
        }
        l.mu.Unlock()
    }
}

func (l *chatLocks) size() int {
    l.mu.Lock()
    defer l.mu.Unlock()
    return len(l.m)
}
