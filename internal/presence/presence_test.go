package presence

import (
	"sync"
	"testing"
	"time"
)

func TestTouchAndExpire(t *testing.T) {
	s := New(50 * time.Millisecond)
	defer s.Close()

	s.Touch("r1", "u1", "Alice")
	s.Touch("r1", "u2", "Bob")

	if got := s.Names("r1"); len(got) != 2 || got[0] != "Alice" || got[1] != "Bob" {
		t.Fatalf("Names() = %v", got)
	}

	time.Sleep(150 * time.Millisecond)
	if got := s.Names("r1"); len(got) != 0 {
		t.Fatalf("entries must expire, got %v", got)
	}
}

func TestRefreshExtendsWindow(t *testing.T) {
	s := New(80 * time.Millisecond)
	defer s.Close()

	s.Touch("r1", "u1", "Alice")
	time.Sleep(50 * time.Millisecond)
	s.Touch("r1", "u1", "Alice")
	time.Sleep(50 * time.Millisecond)

	if got := s.Names("r1"); len(got) != 1 {
		t.Fatalf("refreshed entry expired early: %v", got)
	}
}

func TestRemoveAndClearNotify(t *testing.T) {
	s := New(time.Second)
	defer s.Close()

	var mu sync.Mutex
	var changes [][]string
	s.OnChange(func(room string, names []string) {
		mu.Lock()
		changes = append(changes, names)
		mu.Unlock()
	})

	s.Touch("r1", "u1", "Alice")
	s.Touch("r1", "u1", "Alice")
	s.Remove("r1", "u1")
	s.Remove("r1", "u1")
	s.Touch("r1", "u2", "Bob")
	s.Clear("r1")

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 4 {
		t.Fatalf("expected 4 notifications, got %d: %v", len(changes), changes)
	}
	if len(changes[3]) != 0 {
		t.Fatalf("clear must notify an empty set, got %v", changes[3])
	}
}

func TestCloseIgnoresTouches(t *testing.T) {
	s := New(time.Second)
	s.Close()
	s.Touch("r1", "u1", "Alice")
	if got := s.Names("r1"); len(got) != 0 {
		t.Fatalf("closed set accepted a touch: %v", got)
	}
}
