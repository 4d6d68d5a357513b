package lib

import "sync"

// chatQueue runs jobs of one chat strictly in submission order while
// different chats proceed concurrently. A chat's worker starts on its first
// job and exits once its queue is empty.
type chatQueue struct {
    mu      sync.Mutex
    pending map[int64][]func()
    wg      sync.WaitGroup
}

func newChatQueue() *chatQueue {
    return &chatQueue{pending: map[int64][]func(){}}
}

// submit never blocks the caller.
func (q *chatQueue) submit(chatID int64, job func()) {
    q.mu.Lock()
    defer q.mu.Unlock()
    jobs, running := q.pending[chatID]
    q.pending[chatID] = append(jobs, job)
    if running { return }
    q.wg.Add(1)
    go q.drain(chatID)
}

func (q *chatQueue) drain(chatID int64) {
    defer q.wg.Done()
    for {
        q.mu.Lock()
        jobs := q.pending[chatID]
        if len(jobs) == 0 {
            delete(q.pending, chatID)
            q.mu.Unlock()
            return
        }
        job := jobs[0]
        jobs[0] = nil
        q.pending[chatID] = jobs[1:]
        q.mu.Unlock()
        job()
    }
}

// wait blocks until every submitted job has finished.
func (q *chatQueue) wait() { q.wg.Wait() }

func (q *chatQueue) size() int {
    q.mu.Lock()
    defer q.mu.Unlock()
    return len(q.pending)
}
