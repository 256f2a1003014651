// Package diag records the failures public entry points swallow, so that
// "the operation did nothing" always leaves a trace.
package diag

import (
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapbridge/internal/db"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

// Entry is one diagnostic.
type Entry struct {
	At      time.Time   `json:"at"`
	Session string      `json:"session"`
	Op      string      `json:"op" example:"activateLayer"`
	Layer   string      `json:"layer,omitempty"`
	Kind    maperr.Kind `json:"kind" enum:"configuration,not_ready,not_found,interaction,internal"`
	Message string      `json:"message"`
}

// Reporter receives diagnostics.
type Reporter interface {
	Report(e Entry)
}

// Discard drops every diagnostic.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(Entry) {}

const schema = `CREATE TABLE IF NOT EXISTS diagnostics (
	at TIMESTAMP,
	session VARCHAR,
	op VARCHAR,
	layer VARCHAR,
	kind VARCHAR,
	message VARCHAR
)`

const callbackSchema = `CREATE TABLE IF NOT EXISTS callbacks (
	at TIMESTAMP,
	session VARCHAR,
	kind VARCHAR,
	target VARCHAR,
	ids VARCHAR
)`

// Recorder logs diagnostics, keeps the most recent in memory and, with a
// database, journals them in the diagnostics table.
type Recorder struct {
	mu      sync.Mutex
	log     zerolog.Logger
	conn    *sql.DB
	entries []Entry
	max     int
	now     func() time.Time
}

// NewRecorder creates a recorder keeping up to capacity entries and
// journaling them in conn. conn may be nil.
func NewRecorder(log zerolog.Logger, conn *sql.DB, capacity int) (*Recorder, error) {
	if conn != nil {
		if err := db.Migrate(conn, schema, callbackSchema); err != nil {
			return nil, err
		}
	}
	r := NewMemoryRecorder(log, capacity)
	r.conn = conn
	return r, nil
}

// NewMemoryRecorder creates a recorder without a journal.
func NewMemoryRecorder(log zerolog.Logger, capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Recorder{
		log: log.With().Str("component", "diag").Logger(),
		max: capacity,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Report logs e at a level matching its kind and stores it.
func (r *Recorder) Report(e Entry) {
	if e.At.IsZero() {
		e.At = r.now()
	}
	ev := r.log.WithLevel(levelFor(e.Kind))
	ev.Str("session", e.Session).
		Str("op", e.Op).
		Str("layer", e.Layer).
		Str("kind", string(e.Kind)).
		Msg(e.Message)

	r.mu.Lock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
	r.mu.Unlock()

	if r.conn == nil {
		return
	}
	if _, err := r.conn.Exec(
		"INSERT INTO diagnostics (at, session, op, layer, kind, message) VALUES (?, ?, ?, ?, ?, ?)",
		e.At, e.Session, e.Op, e.Layer, string(e.Kind), e.Message,
	); err != nil {
		r.log.Error().Err(err).Msg("journal diagnostic")
	}
}

// Entries returns stored diagnostics, oldest first, optionally for one
// session only. limit <= 0 returns everything.
func (r *Recorder) Entries(session string, limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Entry{}
	for _, e := range r.entries {
		if session == "" || e.Session == session {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Journaled reports whether diagnostics go to a database.
func (r *Recorder) Journaled() bool {
	return r.conn != nil
}

func levelFor(k maperr.Kind) zerolog.Level {
	switch k {
	case maperr.KindNotReady:
		return zerolog.DebugLevel
	case maperr.KindNotFound, maperr.KindInteraction:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
