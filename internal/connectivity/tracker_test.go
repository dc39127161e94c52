package connectivity

import "testing"

func TestTransitions(t *testing.T) {
	tr := NewTracker()
	if tr.Online() {
		t.Fatalf("tracker must start offline")
	}

	steps := []struct {
		apply  func()
		state  State
		online bool
	}{
		{tr.Connected, StateOnline, true},
		{tr.Disconnected, StateReconnecting, false},
		{tr.Connected, StateOnline, true},
		{tr.Disconnected, StateReconnecting, false},
		{tr.ReconnectExhausted, StateOffline, false},
	}
	for i, step := range steps {
		step.apply()
		if tr.State() != step.state || tr.Online() != step.online {
			t.Fatalf("step %d: state=%v online=%v, want %v %v", i, tr.State(), tr.Online(), step.state, step.online)
		}
	}
}

func TestSubscribeNotifiesOnChangeOnly(t *testing.T) {
	tr := NewTracker()

	var got []bool
	cancel := tr.Subscribe(func(_ State, online bool) {
		got = append(got, online)
	})

	tr.Connected()
	tr.Connected()
	tr.Disconnected()
	cancel()
	cancel()
	tr.Connected()

	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("unexpected notifications: %v", got)
	}
}
