package extract

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// pacer spaces out keystrokes by a random interval in [min, max].
type pacer struct {
	mu       sync.Mutex
	min, max time.Duration
	rnd      *rand.Rand
	sleep    func(context.Context, time.Duration) error
}

func newPacer(min, max time.Duration) *pacer {
	if max < min {
		max = min
	}
	return &pacer{
		min:   min,
		max:   max,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: sleepContext,
	}
}

func (p *pacer) next() time.Duration {
	if p.max <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	span := int64(p.max - p.min)
	if span <= 0 {
		return p.min
	}
	return p.min + time.Duration(p.rnd.Int63n(span+1))
}

func (p *pacer) pause(ctx context.Context) error {
	return p.sleep(ctx, p.next())
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
