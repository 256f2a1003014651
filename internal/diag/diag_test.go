package diag

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-mapbridge/internal/db"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

func TestRecorderRing(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewRecorder(zerolog.New(&buf), nil, 2)
	require.NoError(t, err)

	r.Report(Entry{Session: "a", Op: "activateLayer", Layer: "x", Kind: maperr.KindNotFound, Message: "one"})
	r.Report(Entry{Session: "b", Op: "click", Kind: maperr.KindInteraction, Message: "two"})
	r.Report(Entry{Session: "a", Op: "filter", Kind: maperr.KindConfiguration, Message: "three"})

	all := r.Entries("", 0)
	require.Len(t, all, 2)
	assert.Equal(t, "two", all[0].Message)
	assert.False(t, all[0].At.IsZero())

	only := r.Entries("a", 0)
	require.Len(t, only, 1)
	assert.Equal(t, "three", only[0].Message)

	assert.Len(t, r.Entries("", 1), 1)
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"op":"filter"`)
}

func TestMemoryRecorder(t *testing.T) {
	var buf bytes.Buffer
	r := NewMemoryRecorder(zerolog.New(&buf), 0)
	assert.False(t, r.Journaled())

	r.Report(Entry{Session: "a", Op: "click", Layer: "iris", Kind: maperr.KindInteraction, Message: "no feature"})
	require.Len(t, r.Entries("a", 0), 1)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "no feature")
}

func TestLevels(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, levelFor(maperr.KindNotReady))
	assert.Equal(t, zerolog.WarnLevel, levelFor(maperr.KindNotFound))
	assert.Equal(t, zerolog.WarnLevel, levelFor(maperr.KindInteraction))
	assert.Equal(t, zerolog.ErrorLevel, levelFor(maperr.KindInternal))
}

func TestJournal(t *testing.T) {
	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	defer conn.Close()

	r, err := NewRecorder(zerolog.Nop(), conn, 0)
	require.NoError(t, err)
	assert.True(t, r.Journaled())

	r.Report(Entry{Session: "s", Op: "filterByIdList", Layer: "iris", Kind: maperr.KindNotFound, Message: "missing"})
	cb := r.Callbacks("s")
	cb.MapClicked("iris", "751010101")
	cb.SelectedFeatures("com", []string{"75101", "93048"})

	var n int
	require.NoError(t, conn.QueryRow("SELECT count(*) FROM diagnostics WHERE layer = 'iris'").Scan(&n))
	assert.Equal(t, 1, n)

	var ids string
	require.NoError(t, conn.QueryRow("SELECT ids FROM callbacks WHERE kind = 'selected-features'").Scan(&ids))
	assert.Equal(t, "75101,93048", ids)

	tables, err := db.Tables(conn)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"callbacks", "diagnostics"}, tables)
}
