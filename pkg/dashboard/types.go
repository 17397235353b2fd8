// Package dashboard provides a periodically refreshed view of a watch session.
//
// A Dashboard polls a status source on a fixed interval and publishes an
// Update carrying the snapshot plus the counter deltas since the previous
// one. Callers can also request an immediate refresh.
package dashboard

import (
	"time"

	"github.com/0xmhha/autowatch/pkg/session"
)

// DefaultRefreshInterval is used when Config.RefreshInterval is zero.
const DefaultRefreshInterval = time.Second

// Source produces status snapshots. *session.Session implements it.
type Source interface {
	Status() session.Status
}

// Config contains dashboard settings.
type Config struct {
	// RefreshInterval is the polling period. Default: 1s.
	RefreshInterval time.Duration

	// ClearScreen asks renderers to redraw in place.
	ClearScreen bool
}

// Update is one dashboard frame.
type Update struct {
	Timestamp time.Time
	Status    session.Status
	Delta     Delta
}

// Delta holds counter changes since the previous update.
type Delta struct {
	Events  int
	Actions int
	Failed  int
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool {
	return d.Events == 0 && d.Actions == 0 && d.Failed == 0
}
