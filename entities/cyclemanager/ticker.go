//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package cyclemanager

import (
	"time"
)

// CycleTicker paces the cycles of a CycleManager
type CycleTicker interface {
	Start()
	Stop()
	C() <-chan time.Time
	// called with the result of the cycle, tickers may use it to adjust
	// their interval
	CycleExecuted(executed bool)
}

type fixedTicker struct {
	interval time.Duration
	ticker   *time.Ticker
	c        chan time.Time
	done     chan struct{}
}

// NewFixedTicker ticks at a constant interval. A non-positive interval
// returns a ticker that never fires.
func NewFixedTicker(interval time.Duration) CycleTicker {
	if interval <= 0 {
		return NewNoopTicker()
	}

	return &fixedTicker{
		interval: interval,
		c:        make(chan time.Time, 1),
	}
}

func (t *fixedTicker) Start() {
	if t.ticker != nil {
		return
	}

	t.ticker = time.NewTicker(t.interval)
	t.done = make(chan struct{})
	ticker, done := t.ticker, t.done
	go func() {
		for {
			select {
			case <-done:
				return
			case tick := <-ticker.C:
				select {
				case t.c <- tick:
				default:
				}
			}
		}
	}()
}

func (t *fixedTicker) Stop() {
	if t.ticker == nil {
		return
	}

	t.ticker.Stop()
	close(t.done)
	t.ticker = nil
}

func (t *fixedTicker) C() <-chan time.Time {
	return t.c
}

func (t *fixedTicker) CycleExecuted(executed bool) {}

type noopTicker struct {
	c chan time.Time
}

func NewNoopTicker() CycleTicker {
	return &noopTicker{c: make(chan time.Time)}
}

func (t *noopTicker) Start() {}

func (t *noopTicker) Stop() {}

func (t *noopTicker) C() <-chan time.Time {
	return t.c
}

func (t *noopTicker) CycleExecuted(executed bool) {}
