package lifecycle

import "testing"

func TestNotifierNotifiesOnChangeOnly(t *testing.T) {
	n := NewNotifier()
	var got []State
	n.Subscribe(func(s State) { got = append(got, s) })

	n.Set(Foreground) // already foreground, no event
	n.Set(Background)
	n.Set(Background) // duplicate, no event
	n.Set(Foreground)

	want := []State{Background, Foreground}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %v, want %v", i, got[i], want[i])
		}
	}
}
