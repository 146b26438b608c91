package match

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// armTimer replaces *slot with a timer that runs fn after d, stopping any
// timer already there. Callers hold r.mu.
func (r *Registry) armTimer(slot *clockwork.Timer, code string, d time.Duration, fn func()) {
	if *slot != nil {
		stopAndDrainTimer(*slot)
		log.Debug().Str("match_code", code).Msg("replaced existing timer")
	}
	*slot = r.clock.AfterFunc(d, fn)
	log.Debug().
		Str("match_code", code).
		Dur("duration", d).
		Msg("scheduled one-shot timer")
}

// cancelTimer stops and clears *slot. Callers hold r.mu.
func cancelTimer(slot *clockwork.Timer) {
	if *slot == nil {
		return
	}
	stopAndDrainTimer(*slot)
	*slot = nil
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
