// Package pacer provides the fixed delay inserted between successive
// directory listings during a tree traversal.
//
// The delay is a plain blocking wait, not a rate limiter: it spaces
// requests out so a traversal does not hammer the remote server, with no
// queuing or burst accounting.
package pacer

import "time"

// Pacer waits a fixed duration between operations.
type Pacer struct {
	delay time.Duration
}

// New creates a pacer with the given delay between operations.
// A zero or negative delay returns nil; a nil pacer never waits.
func New(delay time.Duration) *Pacer {
	if delay <= 0 {
		return nil
	}
	return &Pacer{delay: delay}
}

// Pause blocks for the configured delay or until stop is closed, whichever
// comes first. It reports whether the full delay elapsed.
func (p *Pacer) Pause(stop <-chan struct{}) bool {
	if p == nil {
		return true
	}

	timer := time.NewTimer(p.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}
