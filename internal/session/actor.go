package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

// ErrClosed is returned by an Actor that no longer runs.
var ErrClosed = maperr.Internal(nil, "session closed")

// Actor serializes every call on a Session through one goroutine.
type Actor struct {
	s     *Session
	inbox chan func(*Session)
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewActor starts the goroutine owning s.
func NewActor(s *Session, buffer int) *Actor {
	if buffer <= 0 {
		buffer = 64
	}
	a := &Actor{
		s:     s,
		inbox: make(chan func(*Session), buffer),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

// ID returns the id of the owned session.
func (a *Actor) ID() string { return a.s.id }

func (a *Actor) loop() {
	defer close(a.done)
	for {
		select {
		case fn := <-a.inbox:
			a.call(fn)
		case <-a.quit:
			return
		}
	}
}

func (a *Actor) call(fn func(*Session)) {
	defer func() {
		if r := recover(); r != nil {
			a.s.fail(op{name: "actor"}, maperr.Internal(fmt.Errorf("%v", r), "session call panicked"))
		}
	}()
	fn(a.s)
}

// Do runs fn on the session goroutine and waits for it. fn still runs when
// ctx ends after it was queued.
func (a *Actor) Do(ctx context.Context, fn func(*Session)) error {
	if a.closed() {
		return ErrClosed
	}
	finished := make(chan struct{})
	wrapped := func(s *Session) {
		defer close(finished)
		fn(s)
	}
	select {
	case a.inbox <- wrapped:
	case <-a.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues fn without waiting. It reports false once the actor closed.
func (a *Actor) Post(fn func(*Session)) bool {
	if a.closed() {
		return false
	}
	select {
	case a.inbox <- fn:
		return true
	case <-a.quit:
		return false
	}
}

func (a *Actor) closed() bool {
	select {
	case <-a.quit:
		return true
	default:
		return false
	}
}

// Close stops the goroutine. Queued calls that did not start are dropped.
func (a *Actor) Close() {
	a.once.Do(func() { close(a.quit) })
	<-a.done
}
