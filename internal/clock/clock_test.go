package clock

import (
	"testing"
	"time"
)

func TestReal(t *testing.T) {
	now := Real{}.Now()
	if now.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", now.Location())
	}
	if now.Nanosecond() != 0 {
		t.Errorf("expected whole seconds, got %v", now)
	}
}

func TestFixed(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var c Clock = Fixed{Time: want}
	if got := c.Now(); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}
