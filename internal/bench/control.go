package bench

import (
	"fmt"
	"sync"
)

// State is the run lifecycle.
type State int

const (
	Idle State = iota
	Running
	Paused
	Finished
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Active reports whether a run is in progress.
func (s State) Active() bool { return s == Running || s == Paused }

// Control holds the operator-visible run state. Its methods are safe to call
// from any goroutine.
type Control struct {
	mu     sync.Mutex
	state  State
	notify func(State)
}

func (c *Control) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pause moves a running run to paused. It reports whether anything changed.
func (c *Control) Pause() bool { return c.transition(Paused, Running) }

// Resume moves a paused run back to running.
func (c *Control) Resume() bool { return c.transition(Running, Paused) }

// Cancel ends a running or paused run.
func (c *Control) Cancel() bool { return c.transition(Cancelled, Running, Paused) }

func (c *Control) begin() error {
	c.mu.Lock()
	if c.state.Active() {
		c.mu.Unlock()
		return fmt.Errorf("run already %s", c.state)
	}
	c.state = Running
	c.mu.Unlock()
	c.changed(Running)
	return nil
}

// finish marks the run finished unless it was cancelled, and returns the
// final state.
func (c *Control) finish() State {
	c.mu.Lock()
	if c.state != Cancelled {
		c.state = Finished
	}
	s := c.state
	c.mu.Unlock()
	c.changed(s)
	return s
}

func (c *Control) transition(to State, from ...State) bool {
	c.mu.Lock()
	ok := false
	for _, f := range from {
		if c.state == f {
			ok = true
			break
		}
	}
	if ok {
		c.state = to
	}
	c.mu.Unlock()
	if ok {
		c.changed(to)
	}
	return ok
}

func (c *Control) changed(s State) {
	if c.notify != nil {
		c.notify(s)
	}
}
