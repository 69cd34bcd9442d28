package jobs

import "testing"

func TestStatusIsIncomplete(t *testing.T) {
	tests := []struct {
		status   Status
		expected bool
	}{
		{StatusPending, true},
		{StatusRunning, true},
		{StatusSuccess, false},
		{StatusFailed, false},
		{StatusCancelled, false},
		{StatusPaused, false},
		{Status("UNKNOWN"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsIncomplete(); got != tt.expected {
				t.Errorf("IsIncomplete() = %v, want %v", got, tt.expected)
			}
		})
	}
}
