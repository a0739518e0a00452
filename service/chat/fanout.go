package chat

import (
	"sync"

	"chatgate/logger"
	"chatgate/tools/safe"
)

type fanoutJob struct {
	clients []*Client
	payload []byte
}

// Fanout delivers one payload to a snapshot of subscribers through a
// worker pool. Delivery is at-most-once best-effort: a client whose
// queue is full or whose connection is mid-close is logged and skipped,
// never blocking delivery to the rest. One worker (the default) keeps
// room delivery in enqueue order.
type Fanout struct {
	jobs     chan fanoutJob
	done     chan struct{}
	stopOnce sync.Once
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 256
	}
	f := &Fanout{
		jobs: make(chan fanoutJob, queue),
		done: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		safe.Go("fanout-worker", func() {
			for {
				select {
				case <-f.done:
					return
				case job := <-f.jobs:
					for _, c := range job.clients {
						if !c.Enqueue(job.payload) {
							logger.Infof("[fanout] drop conn=%s user=%s", c.ConnID, c.UserID)
						}
					}
				}
			}
		})
	}
	return f
}

// Broadcast hands a delivery job to the pool. The snapshot decides who
// receives: joins completing after this call may miss the message. A
// broadcast after Close is a no-op; read loops on hijacked connections
// can still dispatch frames while the process is shutting down.
func (f *Fanout) Broadcast(clients []*Client, payload []byte) {
	if len(clients) == 0 || len(payload) == 0 {
		return
	}
	select {
	case <-f.done:
		return
	default:
	}
	select {
	case f.jobs <- fanoutJob{clients: clients, payload: payload}:
	case <-f.done:
	}
}

// Close stops the workers. Queued jobs are dropped; delivery here is
// best-effort all the way down.
func (f *Fanout) Close() {
	f.stopOnce.Do(func() { close(f.done) })
}
