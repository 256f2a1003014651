package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-mapbridge/internal/canvas/memory"
	"github.com/joeblew999/plat-mapbridge/internal/catalog"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

func TestActorSerializesCalls(t *testing.T) {
	h := ready(t)
	a := NewActor(h.s, 0)
	defer a.Close()

	ids := h.s.Catalog().IDs()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := a.Do(context.Background(), func(s *Session) {
				s.ActivateLayer(ids[i%len(ids)], nil)
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var visible string
	require.NoError(t, a.Do(context.Background(), func(s *Session) {
		visible = s.Snapshot().Visible
	}))
	def, err := h.s.Catalog().Lookup(visible)
	require.NoError(t, err)
	assert.Equal(t, def.PrimitiveIDs(), h.visible())
	assert.Empty(t, h.kinds())
}

func TestActorRecoversPanics(t *testing.T) {
	h := ready(t)
	a := NewActor(h.s, 0)
	defer a.Close()

	require.NoError(t, a.Do(context.Background(), func(*Session) { panic("boom") }))
	assert.Equal(t, []maperr.Kind{maperr.KindInternal}, h.kinds())

	// still serving
	require.NoError(t, a.Do(context.Background(), func(s *Session) { s.ActivateLayer("iris", nil) }))
	assert.Equal(t, []string{"iris", "iris-labels"}, h.visible())
}

func TestActorClose(t *testing.T) {
	h := ready(t)
	a := NewActor(h.s, 0)
	a.Close()
	a.Close()

	assert.ErrorIs(t, a.Do(context.Background(), func(*Session) {}), ErrClosed)
	assert.False(t, a.Post(func(*Session) {}))
}

func TestActorDoHonoursContext(t *testing.T) {
	h := ready(t)
	a := NewActor(h.s, 1)
	defer a.Close()

	release := make(chan struct{})
	require.True(t, a.Post(func(*Session) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := a.Do(ctx, func(*Session) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func testFactory(t *testing.T) Factory {
	cat, err := catalog.Default()
	require.NoError(t, err)
	return func(id string) (*Session, error) {
		return New(Options{
			ID:      id,
			Catalog: cat,
			Canvas:  memory.New(memory.Options{Fixtures: fixtures()}),
			Logger:  zerolog.Nop(),
		}), nil
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(testFactory(t))
	defer r.Close()

	def, err := r.Open(DefaultID)
	require.NoError(t, err)
	again, err := r.Open(DefaultID)
	require.NoError(t, err)
	assert.Same(t, def, again)

	created, err := r.Create()
	require.NoError(t, err)
	_, err = uuid.Parse(created.ID())
	assert.NoError(t, err)
	assert.Equal(t, []string{DefaultID, created.ID()}, r.IDs())

	_, err = r.Get("missing")
	assert.True(t, maperr.Is(err, maperr.KindNotFound))

	require.NoError(t, r.Remove(created.ID()))
	assert.Equal(t, []string{DefaultID}, r.IDs())
	assert.False(t, created.Post(func(*Session) {}))
	assert.True(t, maperr.Is(r.Remove(created.ID()), maperr.KindNotFound))
}

func TestSessionsAreIsolated(t *testing.T) {
	r := NewRegistry(testFactory(t))
	defer r.Close()
	ctx := context.Background()

	a, err := r.Create()
	require.NoError(t, err)
	b, err := r.Create()
	require.NoError(t, err)

	ready := func(s *Session) {
		s.Canvas().(*memory.Canvas).Load()
		s.MarkReady()
	}
	require.NoError(t, a.Do(ctx, ready))
	require.NoError(t, b.Do(ctx, ready))
	require.NoError(t, a.Do(ctx, func(s *Session) { s.ActivateLayer("iris", nil) }))

	var va, vb string
	require.NoError(t, a.Do(ctx, func(s *Session) { va = s.Snapshot().Visible }))
	require.NoError(t, b.Do(ctx, func(s *Session) { vb = s.Snapshot().Visible }))
	assert.Equal(t, "iris", va)
	assert.Empty(t, vb)
}
