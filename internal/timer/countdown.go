package timer

import (
	"fmt"
	"sync"
	"time"
)

// Ticker is the subset of *time.Ticker the countdown needs
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every interval
type TickerFactory func(interval time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// RealTicker wraps time.NewTicker
func RealTicker(interval time.Duration) Ticker {
	return realTicker{t: time.NewTicker(interval)}
}

// State is a snapshot of a countdown
type State struct {
	Remaining int
	Expired   bool
	Urgent    bool
}

// Countdown counts whole seconds down to zero. It is advisory only: nothing
// else in the flow is blocked when it expires.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	expired   bool
	urgency   int
	onTick    func(State)
	newTicker TickerFactory
	stop      chan struct{}
	done      chan struct{}
}

// Option configures a Countdown
type Option func(*Countdown)

// WithTicker replaces the real one-second ticker, mainly for tests
func WithTicker(factory TickerFactory) Option {
	return func(c *Countdown) { c.newTicker = factory }
}

// WithUrgency marks the state urgent once remaining <= seconds
func WithUrgency(seconds int) Option {
	return func(c *Countdown) { c.urgency = seconds }
}

// OnTick registers a callback run after every tick, outside the lock.
// The callback must not call Stop.
func OnTick(fn func(State)) Option {
	return func(c *Countdown) { c.onTick = fn }
}

// NewCountdown creates a stopped countdown
func NewCountdown(opts ...Option) *Countdown {
	c := &Countdown{newTicker: RealTicker}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins ticking once per second from seconds. Starting a running
// countdown restarts it. A non-positive duration expires immediately.
func (c *Countdown) Start(seconds int) {
	c.Stop()

	c.mu.Lock()
	c.expired = false
	if seconds <= 0 {
		c.remaining = 0
		c.expired = true
		c.mu.Unlock()
		return
	}
	c.remaining = seconds
	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop, c.done = stop, done
	ticker := c.newTicker(time.Second)
	c.mu.Unlock()

	go c.run(ticker, stop, done)
}

func (c *Countdown) run(ticker Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			state, finished := c.tick()
			if c.onTick != nil {
				c.onTick(state)
			}
			if finished {
				return
			}
		}
	}
}

func (c *Countdown) tick() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 && !c.expired {
		c.expired = true
	}
	return c.stateLocked(), c.expired
}

// Stop cancels ticking. It is safe to call repeatedly, before Start and
// after expiry.
func (c *Countdown) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Remaining returns the seconds left
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Expired reports whether the countdown reached zero
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// State returns a consistent snapshot
func (c *Countdown) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Countdown) stateLocked() State {
	return State{
		Remaining: c.remaining,
		Expired:   c.expired,
		Urgent:    c.urgency > 0 && c.remaining <= c.urgency,
	}
}

// FormatClock renders seconds as MM:SS
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
