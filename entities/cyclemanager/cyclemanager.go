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
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	enterrors "github.com/weaviate/refstore/entities/errors"
)

type (
	// reports whether a stop was requested, long running cycles should
	// check it between units of work and return early
	ShouldBreakFunc func() bool
	// return value indicates whether actual work was done in the cycle
	CycleFunc func(shouldBreak ShouldBreakFunc) bool
)

type CycleManager interface {
	Start()
	StopAndWait(ctx context.Context) error
	Running() bool
}

type cycleManager struct {
	sync.Mutex

	cycleFunc   CycleFunc
	cycleTicker CycleTicker
	logger      logrus.FieldLogger

	running bool
	stop    chan struct{}
	stopped chan struct{}
}

// New runs cycleFunc on every tick of cycleTicker in a single background
// goroutine. Cycles never overlap.
func New(cycleTicker CycleTicker, cycleFunc CycleFunc, logger logrus.FieldLogger) CycleManager {
	return &cycleManager{
		cycleFunc:   cycleFunc,
		cycleTicker: cycleTicker,
		logger:      logger,
	}
}

// Start does not block and does nothing if already running
func (c *cycleManager) Start() {
	c.Lock()
	defer c.Unlock()

	if c.running {
		return
	}

	stop, stopped := make(chan struct{}), make(chan struct{})
	c.stop, c.stopped = stop, stopped
	c.running = true

	shouldBreak := func() bool {
		select {
		case <-stop:
			return true
		default:
			return false
		}
	}

	enterrors.GoWrapper(func() {
		defer close(stopped)

		c.cycleTicker.Start()
		defer c.cycleTicker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-c.cycleTicker.C():
				// stop wins if both are ready
				if shouldBreak() {
					return
				}
				c.cycleTicker.CycleExecuted(c.cycleFunc(shouldBreak))
			}
		}
	}, c.logger)
}

// StopAndWait requests a stop and waits for the running cycle to return or
// for ctx to expire, whichever comes first. The manager counts as stopped
// once the request was made, even if ctx expired before the cycle returned.
func (c *cycleManager) StopAndWait(ctx context.Context) error {
	c.Lock()
	if !c.running {
		c.Unlock()
		return nil
	}
	close(c.stop)
	c.running = false
	stopped := c.stopped
	c.Unlock()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *cycleManager) Running() bool {
	c.Lock()
	defer c.Unlock()

	return c.running
}

func NewNoop() CycleManager {
	return &noopCycleManager{}
}

type noopCycleManager struct {
	sync.Mutex
	running bool
}

func (c *noopCycleManager) Start() {
	c.Lock()
	defer c.Unlock()
	c.running = true
}

func (c *noopCycleManager) StopAndWait(ctx context.Context) error {
	c.Lock()
	defer c.Unlock()
	c.running = false
	return nil
}

func (c *noopCycleManager) Running() bool {
	c.Lock()
	defer c.Unlock()
	return c.running
}
