package core

import (
	"context"
	"sync"
)

// EventGroup is a set of event flags shared between a waiting goroutine
// and the callbacks that post to it. Set ORs flags in, Wait returns and
// clears every requested flag that is set.
type EventGroup struct {
	mu     sync.Mutex
	flags  uint32
	notify chan struct{}
}

// NewEventGroup creates an event group with all flags clear
func NewEventGroup() *EventGroup {
	return &EventGroup{
		notify: make(chan struct{}, 1),
	}
}

// Set ORs mask into the group and wakes the waiter
func (g *EventGroup) Set(mask uint32) {
	g.mu.Lock()
	g.flags |= mask
	g.mu.Unlock()

	select {
	case g.notify <- struct{}{}:
	default:
	}
}

// Replace clears the flags in unset and ORs in set as one update, so a
// waiter never sees the old flags together with the new ones.
func (g *EventGroup) Replace(unset, set uint32) {
	g.mu.Lock()
	g.flags = g.flags&^unset | set
	g.mu.Unlock()

	select {
	case g.notify <- struct{}{}:
	default:
	}
}

// Get returns and clears the flags in mask without blocking
func (g *EventGroup) Get(mask uint32) uint32 {
	g.mu.Lock()
	got := g.flags & mask
	g.flags &^= got
	g.mu.Unlock()
	return got
}

// Peek returns the flags in mask without clearing them
func (g *EventGroup) Peek(mask uint32) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.flags & mask
}

// Wait blocks until at least one flag in mask is set or ctx is done
func (g *EventGroup) Wait(ctx context.Context, mask uint32) (uint32, error) {
	for {
		if got := g.Get(mask); got != 0 {
			return got, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-g.notify:
		}
	}
}
