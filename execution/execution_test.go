package execution_test

import (
	"testing"

	"github.com/polos-dev/polos-sub001/execution"
)

func TestStatus_Terminal(t *testing.T) {
	terminal := []execution.Status{
		execution.StatusCompleted, execution.StatusFailed, execution.StatusCancelled,
	}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}

	open := []execution.Status{
		execution.StatusPending, execution.StatusQueued,
		execution.StatusRunning, execution.StatusWaiting,
	}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to execution.Status }{
		{execution.StatusPending, execution.StatusQueued},
		{execution.StatusQueued, execution.StatusRunning},
		{execution.StatusRunning, execution.StatusWaiting},
		{execution.StatusRunning, execution.StatusCompleted},
		{execution.StatusRunning, execution.StatusFailed},
		{execution.StatusRunning, execution.StatusCancelled},
		{execution.StatusWaiting, execution.StatusQueued},
		{execution.StatusWaiting, execution.StatusCancelled},
		{execution.StatusQueued, execution.StatusCancelled},
	}
	for _, tc := range legal {
		if !execution.CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to execution.Status }{
		{execution.StatusQueued, execution.StatusWaiting},
		{execution.StatusQueued, execution.StatusCompleted},
		{execution.StatusWaiting, execution.StatusRunning},
		{execution.StatusWaiting, execution.StatusCompleted},
		{execution.StatusCompleted, execution.StatusQueued},
		{execution.StatusFailed, execution.StatusQueued},
		{execution.StatusCancelled, execution.StatusRunning},
		{execution.StatusRunning, execution.StatusQueued},
	}
	for _, tc := range illegal {
		if execution.CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", tc.from, tc.to)
		}
	}
}
