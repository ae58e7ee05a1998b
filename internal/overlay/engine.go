package overlay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"broadcast-console/internal/domain"
	"broadcast-console/pkg/logger"

	"github.com/jonboulle/clockwork"
)

// PushTextFunc delivers the rendered overlay to the streaming tool.
type PushTextFunc func(ctx context.Context, text string) error

// Engine recomputes an auction's remaining time on a fixed cadence and
// renders it through the injected push function. It owns the
// AuctionState while a timer is running: the tick only ever derives
// remaining time from the end time, never advances the end time itself.
type Engine struct {
	push  PushTextFunc
	clock clockwork.Clock
	log   logger.Logger

	mu      sync.Mutex
	state   *domain.AuctionState
	stopCh  chan struct{}
	running bool
}

func NewEngine(push PushTextFunc, clock clockwork.Clock, log logger.Logger) *Engine {
	return &Engine{
		push:  push,
		clock: clock,
		log:   log,
	}
}

// StartAuctionUpdate cancels any existing timer, adopts the given state
// by reference, renders once immediately, then re-renders every
// interval.
func (e *Engine) StartAuctionUpdate(state *domain.AuctionState, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}

	e.mu.Lock()
	e.stopLocked()
	e.state = state
	e.running = true
	stopCh := make(chan struct{})
	e.stopCh = stopCh
	e.mu.Unlock()

	e.Tick()

	ticker := e.clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				e.Tick()
			case <-stopCh:
				return
			}
		}
	}()
}

// StopAuctionUpdate cancels the timer. The state reference stays with
// the caller.
func (e *Engine) StopAuctionUpdate() {
	e.mu.Lock()
	e.stopLocked()
	e.mu.Unlock()
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) UpdateCarInfo(car domain.CarInfo) {
	e.mu.Lock()
	if e.state == nil {
		e.mu.Unlock()
		return
	}
	e.state.Car = car
	e.mu.Unlock()

	e.Tick()
}

// UpdateHighestBidder records the bid and writes its amount through as
// the car's current price.
func (e *Engine) UpdateHighestBidder(bidder domain.Bidder) {
	e.mu.Lock()
	if e.state == nil {
		e.mu.Unlock()
		return
	}
	e.state.HighestBidder = &bidder
	e.state.Car.CurrentPrice = bidder.Amount
	e.mu.Unlock()

	e.Tick()
}

// ExtendAuctionTime shifts the end time forward without resetting any
// elapsed state.
func (e *Engine) ExtendAuctionTime(seconds int) {
	e.mu.Lock()
	if e.state == nil {
		e.mu.Unlock()
		return
	}
	e.state.EndTime = e.state.EndTime.Add(time.Duration(seconds) * time.Second)
	e.mu.Unlock()

	e.Tick()
}

// SetAuctionActive freezes the countdown when deactivating; on
// reactivation the end time is recomputed from the frozen remaining
// time relative to now.
func (e *Engine) SetAuctionActive(active bool) {
	e.mu.Lock()
	if e.state == nil {
		e.mu.Unlock()
		return
	}
	if active && !e.state.Active {
		e.state.EndTime = e.clock.Now().Add(time.Duration(e.state.RemainingSeconds) * time.Second)
	}
	e.state.Active = active
	e.mu.Unlock()

	e.Tick()
}

// Tick recomputes remaining time (only while active) and renders. Push
// failures are logged and swallowed; a dropped overlay update must not
// stop the timer.
func (e *Engine) Tick() {
	e.mu.Lock()
	if e.state == nil {
		e.mu.Unlock()
		return
	}
	if e.state.Active {
		remaining := int(e.state.EndTime.Sub(e.clock.Now()) / time.Second)
		if remaining < 0 {
			remaining = 0
		}
		e.state.RemainingSeconds = remaining
	}
	text := renderOverlay(e.state)
	e.mu.Unlock()

	if err := e.push(context.Background(), text); err != nil {
		e.log.Error("Failed to push overlay text", "error", err)
	}
}

func (e *Engine) stopLocked() {
	if !e.running {
		return
	}
	close(e.stopCh)
	e.stopCh = nil
	e.running = false
}

// RenderCarInfo formats a car description for one-shot pushes made
// outside a running auction.
func RenderCarInfo(car domain.CarInfo) string {
	return fmt.Sprintf("%d %s %s (%s)\nCurrent Price: $%.2f",
		car.Year, car.Make, car.Model, car.Color, car.CurrentPrice)
}

func renderOverlay(state *domain.AuctionState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s %s (%s)\n", state.Car.Year, state.Car.Make, state.Car.Model, state.Car.Color)
	fmt.Fprintf(&b, "Current Price: $%.2f\n", state.Car.CurrentPrice)
	if state.HighestBidder != nil {
		fmt.Fprintf(&b, "Highest Bidder: %s ($%.2f)\n", state.HighestBidder.Name, state.HighestBidder.Amount)
	}
	fmt.Fprintf(&b, "Min Increment: $%.2f\n", state.MinIncrement)
	fmt.Fprintf(&b, "Time Left: %02d:%02d", state.RemainingSeconds/60, state.RemainingSeconds%60)
	return b.String()
}
