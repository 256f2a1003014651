package diag

import (
	"strings"

	"github.com/joeblew999/plat-mapbridge/internal/host"
)

// Callbacks journals the callbacks of a session in the callbacks table.
// Without a database it does nothing.
func (r *Recorder) Callbacks(session string) host.Callbacks {
	return callbackJournal{r: r, session: session}
}

type callbackJournal struct {
	r       *Recorder
	session string
}

func (j callbackJournal) MapClicked(layerID, externalID string) {
	j.insert(host.EventMapClicked, layerID, externalID)
}

func (j callbackJournal) SelectedFeatures(groupTag string, ids []string) {
	j.insert(host.EventSelectedFeatures, groupTag, strings.Join(ids, ","))
}

func (j callbackJournal) insert(kind, target, ids string) {
	if j.r.conn == nil {
		return
	}
	if _, err := j.r.conn.Exec(
		"INSERT INTO callbacks (at, session, kind, target, ids) VALUES (?, ?, ?, ?, ?)",
		j.r.now(), j.session, kind, target, ids,
	); err != nil {
		j.r.log.Error().Err(err).Str("session", j.session).Msg("journal callback")
	}
}
