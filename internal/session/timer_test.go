package session

import "testing"

func TestFormatRemain(t *testing.T) {
	tests := []struct {
		secs int64
		want string
	}{
		{-5, "00:00:00"},
		{0, "00:00:00"},
		{59, "00:00:59"},
		{60, "00:01:00"},
		{3599, "00:59:59"},
		{3661, "01:01:01"},
		{7200, "02:00:00"},
	}
	for _, tt := range tests {
		if got := FormatRemain(tt.secs); got != tt.want {
			t.Errorf("FormatRemain(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}

func TestCountdownFloorsAtZero(t *testing.T) {
	var rendered []string
	c := NewCountdown(func(s string) { rendered = append(rendered, s) })
	c.Start(5)
	c.Stop()

	// Six decrements against five remaining seconds.
	for i := 0; i < 6; i++ {
		c.tick()
	}

	if got := c.Remaining(); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}
	last := rendered[len(rendered)-1]
	if last != "00:00:00" {
		t.Errorf("last render = %q, want 00:00:00", last)
	}
	for _, r := range rendered {
		if r[0] == '-' {
			t.Fatalf("negative render %q", r)
		}
	}
}

func TestCountdownRendersImmediately(t *testing.T) {
	var rendered []string
	c := NewCountdown(func(s string) { rendered = append(rendered, s) })
	c.Start(3661)
	c.Stop()

	if len(rendered) == 0 || rendered[0] != "01:01:01" {
		t.Fatalf("initial render = %v, want 01:01:01 first", rendered)
	}
}

func TestCountdownResyncReplacesValue(t *testing.T) {
	c := NewCountdown(nil)
	c.Start(10)
	c.tick()
	c.tick()
	if got := c.Remaining(); got != 8 {
		t.Fatalf("Remaining = %d, want 8", got)
	}

	c.Resync(300)
	c.Stop()
	if got := c.Remaining(); got != 300 {
		t.Errorf("Remaining after resync = %d, want 300", got)
	}

	c.tick()
	if got := c.Remaining(); got != 299 {
		t.Errorf("Remaining after resync tick = %d, want 299", got)
	}
}

func TestCountdownNegativeStart(t *testing.T) {
	c := NewCountdown(nil)
	c.Start(-10)
	c.Stop()
	if got := c.Remaining(); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}
}
