package activity

import (
	"fmt"
	"sync"
	"testing"
)

func TestRecordAndTail(t *testing.T) {
	b := NewBuffer(5)

	for i := 0; i < 3; i++ {
		b.Record(Event{Type: EventWebhookAccepted, Reason: fmt.Sprintf("e%d", i)})
	}

	if b.Len() != 3 {
		t.Errorf("Len() = %d, want 3", b.Len())
	}

	tail := b.Tail(0)
	if len(tail) != 3 {
		t.Fatalf("Tail(0) len = %d, want 3", len(tail))
	}
	// Newest first
	if tail[0].Reason != "e2" || tail[2].Reason != "e0" {
		t.Errorf("Tail order = [%s %s %s], want [e2 e1 e0]", tail[0].Reason, tail[1].Reason, tail[2].Reason)
	}
}

func TestEvictionAtCapacity(t *testing.T) {
	b := NewBuffer(3)

	for i := 0; i < 7; i++ {
		b.Record(Event{Reason: fmt.Sprintf("e%d", i)})
	}

	if b.Len() != 3 {
		t.Errorf("Len() = %d, want 3", b.Len())
	}

	tail := b.Tail(10)
	if len(tail) != 3 {
		t.Fatalf("Tail(10) len = %d, want 3", len(tail))
	}
	want := []string{"e6", "e5", "e4"}
	for i, w := range want {
		if tail[i].Reason != w {
			t.Errorf("tail[%d] = %s, want %s", i, tail[i].Reason, w)
		}
	}
}

func TestTailLimit(t *testing.T) {
	b := NewBuffer(10)
	for i := 0; i < 10; i++ {
		b.Record(Event{Reason: fmt.Sprintf("e%d", i)})
	}

	tail := b.Tail(2)
	if len(tail) != 2 {
		t.Fatalf("Tail(2) len = %d, want 2", len(tail))
	}
	if tail[0].Reason != "e9" || tail[1].Reason != "e8" {
		t.Errorf("Tail(2) = [%s %s], want [e9 e8]", tail[0].Reason, tail[1].Reason)
	}
}

func TestTimeStamped(t *testing.T) {
	b := NewBuffer(2)
	b.Record(Event{Type: EventRetry})
	tail := b.Tail(1)
	if tail[0].Time.IsZero() {
		t.Error("Record did not stamp zero time")
	}
}

func TestConcurrentAccess(t *testing.T) {
	b := NewBuffer(DefaultCapacity)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Record(Event{Reason: fmt.Sprintf("g%d-%d", n, j)})
				b.Tail(10)
			}
		}(i)
	}
	wg.Wait()

	if b.Len() != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", b.Len(), DefaultCapacity)
	}
}
