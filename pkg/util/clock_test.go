package util

import (
	"testing"
	"time"
)

func TestManualClock(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	c := NewManualClock(start)
	if UnixMilli(c) != 1_700_000_000_000 {
		t.Fatalf("UnixMilli = %d", UnixMilli(c))
	}

	ch := c.After(100 * time.Millisecond)
	c.Advance(99 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case got := <-ch:
		if !got.Equal(start.Add(100 * time.Millisecond)) {
			t.Errorf("fired at %v", got)
		}
	default:
		t.Fatal("did not fire")
	}
}
