package deliveries

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatePending, StateScheduled, true},
		{StatePending, StateDelivered, false},
		{StatePending, StateSkipped, false},
		{StateScheduled, StateDelivered, true},
		{StateScheduled, StateSkipped, true},
		{StateScheduled, StatePending, false},
		{StateDelivered, StateSkipped, false},
		{StateDelivered, StateScheduled, false},
		{StateSkipped, StateDelivered, false},
		{StateSkipped, StateScheduled, false},
		{"UNKNOWN", StateScheduled, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStatesHaveNoExit(t *testing.T) {
	for _, from := range []string{StateDelivered, StateSkipped} {
		if !IsTerminal(from) {
			t.Fatalf("%s should be terminal", from)
		}
		for _, to := range []string{StatePending, StateScheduled, StateDelivered, StateSkipped} {
			if CanTransition(from, to) {
				t.Fatalf("terminal %s must not move to %s", from, to)
			}
		}
	}
}

func TestSourcesOf(t *testing.T) {
	got := sourcesOf(StateDelivered)
	if len(got) != 1 || got[0] != StateScheduled {
		t.Fatalf("sourcesOf(ENTREGADA) = %v", got)
	}
	got = sourcesOf(StateScheduled)
	if len(got) != 1 || got[0] != StatePending {
		t.Fatalf("sourcesOf(PROGRAMADA) = %v", got)
	}
	if got := sourcesOf(StatePending); len(got) != 0 {
		t.Fatalf("nothing moves into PENDIENTE, got %v", got)
	}
}
