package sim

import (
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// RunLoop drives a Simulator's Tick on a fixed cadence under tomb
// supervision — the same Dying()/Go() shape the teacher's WorkerPool
// used to supervise TCP connection handlers, here supervising the
// single tick worker instead of a pool of them.
type RunLoop struct {
	sim *Simulator
	t   tomb.Tomb
}

// NewRunLoop wraps s for supervised ticking.
func NewRunLoop(s *Simulator) *RunLoop {
	return &RunLoop{sim: s}
}

// Start launches the tick worker and returns immediately. It stops
// itself once maxTicks is reached (0 means unbounded) or once the
// simulator poisons itself; Stop or the tomb dying ends it early.
func (r *RunLoop) Start(interval time.Duration, maxTicks int64) {
	r.t.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.t.Dying():
				return nil
			case <-ticker.C:
				snap, err := r.sim.Tick()
				if err != nil {
					log.Error().Err(err).Msg("run loop stopping: simulator poisoned")
					return err
				}
				if maxTicks > 0 && int64(snap.Tick) >= maxTicks {
					return nil
				}
			}
		}
	})
}

// Stop signals the tick worker to exit and blocks until it does.
func (r *RunLoop) Stop() error {
	r.t.Kill(nil)
	return r.t.Wait()
}

// Wait blocks until the tick worker exits on its own — simulator
// poisoned, maxTicks reached, or Stop called from elsewhere.
func (r *RunLoop) Wait() error {
	return r.t.Wait()
}
