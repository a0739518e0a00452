package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatgate/logger"
	"chatgate/tools/safe"
)

// Liveness is the periodic probe/terminate sweep. Each tick evicts the
// sessions that never answered the previous tick's ping, then resets
// the flag and probes the rest. A connection therefore survives one
// missed probe and is terminated on the second: the flag goes false
// right after the ping is sent and only a pong flips it back.
type Liveness struct {
	mgr      *ConnManager
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewLiveness(mgr *ConnManager, interval time.Duration) *Liveness {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Liveness{
		mgr:      mgr,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweeper until Stop.
func (l *Liveness) Start() {
	safe.Go("liveness-sweeper", func() {
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stopCh:
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	})
}

func (l *Liveness) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Liveness) sweep() {
	evict, ping := l.mgr.Sweep()

	for _, c := range evict {
		logger.Infof("[liveness] terminating unresponsive conn=%s user=%s", c.ConnID, c.UserID)
		// Closing the socket makes the read loop exit and run the
		// ordinary disconnect path; Unregister here as well so the
		// session is out of the registry before this sweep returns.
		c.shutdown()
		l.mgr.Unregister(c.ConnID)
	}

	deadline := time.Now().Add(writeWait)
	for _, c := range ping {
		if err := c.WS.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
			logger.Infof("[liveness] ping err conn=%s user=%s err=%v", c.ConnID, c.UserID, err)
		}
	}
}
