package safe

import (
	"chatgate/logger"
)

// Go starts a goroutine that recovers from panics so a single
// misbehaving connection can never take the gateway down.
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe] %s panic recovered: %v", name, r)
			}
		}()
		f()
	}()
}
