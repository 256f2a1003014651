package session

import (
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

type phase int

const (
	phaseUninitialized phase = iota
	phaseReady
)

// op is a deferred public call.
type op struct {
	name  string
	layer string
	fn    func() error
}

// run executes o now, or queues it until the canvas is ready.
func (s *Session) run(o op) {
	if s.phase != phaseReady {
		s.pending = append(s.pending, o)
		s.fail(o, maperr.NotReady("%s deferred until the canvas is ready (%d queued)", o.name, len(s.pending)))
		return
	}
	s.exec(o)
}

func (s *Session) exec(o op) {
	if err := o.fn(); err != nil {
		s.fail(o, err)
	}
}

// Ready reports whether MarkReady has completed.
func (s *Session) Ready() bool {
	return s.phase == phaseReady
}

// MarkReady is the canvas ready signal. It registers every catalog
// source, then runs the queued calls once, in arrival order. Calls failing
// during the flush are reported, not queued again.
func (s *Session) MarkReady() {
	if s.phase == phaseReady {
		s.log.Debug().Msg("ready signal ignored, already ready")
		return
	}
	if !s.cv.Loaded() {
		s.fail(op{name: "markReady"}, maperr.NotReady("canvas signalled ready before loading"))
		return
	}
	s.phase = phaseReady

	for _, def := range s.cat.Definitions() {
		if err := s.ensureSourceRegistered(def); err != nil {
			s.fail(op{name: "registerSource", layer: def.ID}, err)
		}
	}

	queued := s.pending
	s.pending = nil
	s.log.Info().Int("queued", len(queued)).Int("sources", len(s.render.sources)).Msg("canvas ready")
	for _, o := range queued {
		s.exec(o)
	}
}
