package session

import (
	"fmt"
	"sync"
	"time"
)

// Countdown mirrors server-reported remaining seconds with a local 1 Hz
// decrement. It never polls; Resync on a fresh summary is the only drift
// correction.
type Countdown struct {
	mu     sync.Mutex
	remain int64
	render func(string)
	stop   chan struct{}
}

// NewCountdown creates a Countdown that pushes each formatted value through
// render.
func NewCountdown(render func(string)) *Countdown {
	if render == nil {
		render = func(string) {}
	}
	return &Countdown{render: render}
}

// Start records the remaining seconds, renders immediately and begins the
// 1 Hz decrement. Any previous decrement loop is cancelled first.
func (c *Countdown) Start(remainingSecs int64) {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
	}
	if remainingSecs < 0 {
		remainingSecs = 0
	}
	c.remain = remainingSecs
	stop := make(chan struct{})
	c.stop = stop
	render := c.render
	c.mu.Unlock()

	render(FormatRemain(remainingSecs))
	go c.run(stop)
}

// Resync replaces the countdown with a fresh server-reported value.
func (c *Countdown) Resync(remainingSecs int64) {
	c.Start(remainingSecs)
}

// Stop cancels the decrement loop. Safe to call repeatedly.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// Remaining returns the current displayed value in seconds.
func (c *Countdown) Remaining() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remain
}

func (c *Countdown) run(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick decrements by one second, flooring at zero.
func (c *Countdown) tick() {
	c.mu.Lock()
	if c.remain > 0 {
		c.remain--
	}
	remain := c.remain
	render := c.render
	c.mu.Unlock()

	render(FormatRemain(remain))
}

// FormatRemain renders seconds as zero-padded HH:MM:SS. Negative input
// renders as 00:00:00.
func FormatRemain(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
