// Package broadcast delivers one message to many recipients through a
// bounded worker pool paced by a shared token-bucket limiter. Delivery is
// best-effort: no retries, no ordering across recipients, and a single
// failed recipient never aborts the rest.
package broadcast

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	Workers    int // default 4
	RatePerSec int // default 25
}

// Outcome tallies one fan-out run. Success+Failed always equals the
// audience size handed to Run.
type Outcome struct {
	Success int
	Failed  int
}

// SendFunc attempts delivery to a single recipient.
type SendFunc func(ctx context.Context, userID int64) error

type Pool struct {
	workers int
	limiter *rate.Limiter
	log     zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	return &Pool{
		workers: workers,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

// Run fans send out to every target and blocks until all attempts finish.
// Each target is attempted exactly once; errors and worker panics count as
// failures for that target only. Cancelling ctx fails the remaining
// targets without abandoning the tally.
func (p *Pool) Run(ctx context.Context, targets []int64, send SendFunc) Outcome {
	if len(targets) == 0 {
		return Outcome{}
	}

	start := time.Now()
	var success, failed atomic.Int64

	queue := make(chan int64)
	var wg sync.WaitGroup
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			for id := range queue {
				if p.sendOne(ctx, idx, id, send) {
					success.Add(1)
				} else {
					failed.Add(1)
				}
			}
		}()
	}

	for _, id := range targets {
		queue <- id
	}
	close(queue)
	wg.Wait()

	out := Outcome{Success: int(success.Load()), Failed: int(failed.Load())}
	evt := p.log.Info()
	if out.Failed > 0 {
		evt = p.log.Warn()
	}
	evt.Int("total", len(targets)).Int("success", out.Success).Int("failed", out.Failed).
		Dur("took", time.Since(start)).Msg("broadcast finished")
	return out
}

func (p *Pool) sendOne(ctx context.Context, worker int, userID int64, send SendFunc) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", worker).Int64("user_id", userID).
				Interface("panic", r).Str("stack", string(debug.Stack())).Msg("panic in broadcast worker")
			ok = false
		}
	}()

	if err := p.limiter.Wait(ctx); err != nil {
		return false
	}
	if err := send(ctx, userID); err != nil {
		p.log.Debug().Int64("user_id", userID).Err(err).Msg("broadcast delivery failed")
		return false
	}
	return true
}
