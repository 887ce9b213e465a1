package state

import "sync"

// lane runs queued I/O for one window in submission order. A worker
// goroutine exists only while the queue is non-empty.
type lane struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (l *lane) run(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, fn)
	if !l.running {
		l.running = true
		go l.drain()
	}
}

func (l *lane) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
	}
}
