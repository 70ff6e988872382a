package auth

import (
	"testing"
	"time"
)

func TestThrottleThresholds(t *testing.T) {
	p := ThrottlePolicy{
		AccountThreshold: 3,
		AccountWindow:    15 * time.Minute,
		SourceThreshold:  10,
		SourceWindow:     10 * time.Minute,
	}

	if !p.AllowAccount(2) {
		t.Fatalf("below threshold must pass")
	}
	if p.AllowAccount(3) {
		t.Fatalf("meeting the threshold must deny")
	}
	if !p.AllowSource(9) || p.AllowSource(10) {
		t.Fatalf("source axis must use its own threshold")
	}
}

func TestThrottleWindows(t *testing.T) {
	p := DefaultThrottlePolicy()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	if got := p.AccountSince(now); !got.Equal(now.Add(-p.AccountWindow)) {
		t.Fatalf("account window start %v", got)
	}
	if got := p.SourceSince(now); !got.Equal(now.Add(-p.SourceWindow)) {
		t.Fatalf("source window start %v", got)
	}
	if p.AccountWindow == p.SourceWindow {
		t.Fatalf("default axes should use independent windows")
	}
}
