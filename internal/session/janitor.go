package session

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
)

// Janitor periodically calls Sweep on a store to drop expired sessions.
// Backends that expire server-side (redis) still get swept, the call is
// just a no-op there.
type Janitor struct {
	Store  Store
	Spec   string
	Logger *log.Logger
	Stop   chan struct{}
}

// NewJanitor validates the cron spec up front so a bad one fails at
// startup instead of silently never firing.
func NewJanitor(store Store, spec string, logger *log.Logger) (*Janitor, error) {
	if spec == "" {
		spec = "@hourly"
	}
	if _, err := cronexpr.Parse(spec); err != nil {
		return nil, err
	}
	return &Janitor{Store: store, Spec: spec, Logger: logger, Stop: make(chan struct{})}, nil
}

func (j *Janitor) Start() {
	go func() {
		for {
			expr := cronexpr.MustParse(j.Spec)
			next := expr.Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-j.Stop:
				timer.Stop()
				return
			case <-timer.C:
				j.tick()
			}
		}
	}()
}

func (j *Janitor) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	removed, err := j.Store.Sweep(ctx)
	if err != nil {
		if j.Logger != nil {
			j.Logger.Printf("session sweep failed: %v", err)
		}
		return
	}
	if removed > 0 && j.Logger != nil {
		j.Logger.Printf("session sweep removed %d expired sessions", removed)
	}
}

func (j *Janitor) Shutdown() { close(j.Stop) }
