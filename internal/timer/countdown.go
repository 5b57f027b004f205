package timer

import (
	"sync"
	"time"
)

// Countdown is a single-use countdown clock that ticks once per interval.
//
// With a zero interval the countdown never ticks on its own and Tick must be
// called by the owner; this keeps session state machines testable without a
// wall clock. With a positive interval a goroutine drives Tick from a
// time.Ticker until the countdown expires or is cancelled.
type Countdown struct {
	interval time.Duration

	mu        sync.Mutex
	remaining int
	started   bool
	paused    bool
	cancelled bool
	expired   bool
	onExpire  func()
	onTick    func(remaining int)
	ticker    *time.Ticker
	stop      chan struct{}
	done      chan struct{}
}

// NewCountdown creates a countdown ticking every interval. Zero means manual ticking.
func NewCountdown(interval time.Duration) *Countdown {
	return &Countdown{
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnExpire registers the callback fired the first time the countdown reaches zero.
func (c *Countdown) OnExpire(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpire = fn
}

// OnTick registers a callback receiving the remaining value after every accepted tick.
func (c *Countdown) OnTick(fn func(remaining int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = fn
}

// Start begins counting down from seconds. Later calls are ignored.
func (c *Countdown) Start(seconds int) {
	c.mu.Lock()
	if c.started || c.cancelled {
		c.mu.Unlock()
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	c.started = true
	c.remaining = seconds
	if c.interval <= 0 {
		close(c.done)
		c.mu.Unlock()
		return
	}
	c.ticker = time.NewTicker(c.interval)
	ticker := c.ticker
	c.mu.Unlock()

	go c.run(ticker)
}

func (c *Countdown) run(ticker *time.Ticker) {
	defer close(c.done)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick decrements the countdown by one unit. Ticks delivered before Start, while
// paused, or after expiry or cancellation are ignored.
func (c *Countdown) Tick() {
	c.mu.Lock()
	if !c.started || c.paused || c.cancelled || c.expired {
		c.mu.Unlock()
		return
	}
	if c.remaining > 0 {
		c.remaining--
	}
	remaining := c.remaining
	fire := remaining == 0
	if fire {
		c.expired = true
		c.stopLocked()
	}
	onTick, onExpire := c.onTick, c.onExpire
	c.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if fire && onExpire != nil {
		onExpire()
	}
}

// Pause suspends ticking. Ticks delivered while paused do not count.
func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.cancelled || c.expired {
		return
	}
	c.paused = true
}

// Resume continues from the value held at Pause. The interval restarts so the
// partial interval before the pause is neither credited nor charged.
func (c *Countdown) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	if c.ticker != nil && !c.cancelled && !c.expired {
		c.ticker.Reset(c.interval)
	}
}

// Cancel stops the countdown permanently. It is safe to call more than once and
// from inside the expiry callback.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	c.stopLocked()
	if !c.started {
		c.started = true
		close(c.done)
	}
}

func (c *Countdown) stopLocked() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

// Remaining returns the remaining units, never below zero.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Paused reports whether ticking is suspended.
func (c *Countdown) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Expired reports whether the countdown has reached zero.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Done is closed once no goroutine is ticking on behalf of this countdown.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}
