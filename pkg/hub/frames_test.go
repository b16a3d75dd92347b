package hub

import (
	"testing"
)

func TestFrameBusDeliversLatest(t *testing.T) {
	b := NewFrameBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish([]byte{1})
	if got := <-ch; got[0] != 1 {
		t.Fatalf("got frame %v, want [1]", got)
	}

	// Two publishes with no reader in between: the stale frame is
	// replaced, not queued.
	b.Publish([]byte{2})
	b.Publish([]byte{3})
	if got := <-ch; got[0] != 3 {
		t.Fatalf("got frame %v, want the newest [3]", got)
	}
}

func TestFrameBusMultipleSubscribers(t *testing.T) {
	b := NewFrameBus()
	a, cancelA := b.Subscribe()
	c, cancelC := b.Subscribe()
	defer cancelA()
	defer cancelC()

	if n := b.Subscribers(); n != 2 {
		t.Fatalf("Subscribers() = %d, want 2", n)
	}

	b.Publish([]byte{7})
	if got := <-a; got[0] != 7 {
		t.Errorf("subscriber a got %v", got)
	}
	if got := <-c; got[0] != 7 {
		t.Errorf("subscriber c got %v", got)
	}
}

func TestFrameBusCancelClosesChannel(t *testing.T) {
	b := NewFrameBus()
	ch, cancel := b.Subscribe()

	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after cancel")
	}
	// Cancel is idempotent and a publish after cancel is harmless.
	cancel()
	b.Publish([]byte{1})
	if n := b.Subscribers(); n != 0 {
		t.Fatalf("Subscribers() = %d after cancel, want 0", n)
	}
}
