package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Tests: New
// =============================================================================

func TestNew_Capacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		wantCap  int
	}{
		{"one", 1, 1},
		{"sixteen", 16, 16},
		{"zero clamped", 0, 1},
		{"negative clamped", -5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New[int](tt.capacity)
			if q.Cap() != tt.wantCap {
				t.Errorf("Cap() = %d, want %d", q.Cap(), tt.wantCap)
			}
			if q.Len() != 0 {
				t.Errorf("Len() = %d, want 0", q.Len())
			}
		})
	}
}

// =============================================================================
// Tests: FIFO ordering
// =============================================================================

func TestBoundedQueue_FIFO(t *testing.T) {
	q := New[int](8)
	for i := 0; i < 8; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) rejected", i)
		}
	}

	for want := 0; want < 8; want++ {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() returned sentinel at %d", want)
		}
		if got != want {
			t.Errorf("Pop() = %d, want %d", got, want)
		}
	}
}

func TestBoundedQueue_FIFO_Concurrent(t *testing.T) {
	const n = 1000
	q := New[int](4)

	go func() {
		for i := 0; i < n; i++ {
			q.Push(i)
		}
	}()

	for want := 0; want < n; want++ {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() returned sentinel at %d", want)
		}
		if got != want {
			t.Fatalf("Pop() = %d, want %d", got, want)
		}
	}
}

func TestBoundedQueue_FIFO_WithRejectedTryPush(t *testing.T) {
	q := New[int](2)

	accepted := []int{}
	for i := 0; i < 5; i++ {
		if q.TryPush(i) {
			accepted = append(accepted, i)
		}
	}

	if len(accepted) != 2 {
		t.Fatalf("accepted %d items, want 2", len(accepted))
	}

	for _, want := range accepted {
		got, _ := q.Pop()
		if got != want {
			t.Errorf("Pop() = %d, want %d", got, want)
		}
	}
}

// =============================================================================
// Tests: TryPush / TryPop
// =============================================================================

func TestBoundedQueue_TryPush_RejectsWhenFull(t *testing.T) {
	q := New[string](3)

	for i := 0; i < 3; i++ {
		if !q.TryPush("x") {
			t.Fatalf("TryPush rejected at occupancy %d", q.Len())
		}
	}
	if q.TryPush("overflow") {
		t.Error("TryPush accepted when occupancy == capacity")
	}
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}

	// Freeing one slot makes room again.
	q.Pop()
	if !q.TryPush("again") {
		t.Error("TryPush rejected after a Pop freed a slot")
	}
}

func TestBoundedQueue_TryPop_Empty(t *testing.T) {
	q := New[int](1)

	v, ok := q.TryPop()
	if ok {
		t.Errorf("TryPop() on empty queue = (%d, true), want (0, false)", v)
	}

	q.Push(7)
	v, ok = q.TryPop()
	if !ok || v != 7 {
		t.Errorf("TryPop() = (%d, %v), want (7, true)", v, ok)
	}
}

func TestBoundedQueue_OccupancyNeverExceedsCapacity(t *testing.T) {
	const capacity = 4
	q := New[int](capacity)

	var wg sync.WaitGroup
	var overflow atomic.Bool
	stop := make(chan struct{})

	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				q.TryPush(1)
				if q.Len() > capacity {
					overflow.Store(true)
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			q.TryPop()
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()

	if overflow.Load() {
		t.Error("observed occupancy above capacity")
	}
}

// =============================================================================
// Tests: Shutdown
// =============================================================================

func TestBoundedQueue_Shutdown_WakesBlockedPop(t *testing.T) {
	q := New[int](1)

	result := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		result <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Shutdown()

	select {
	case ok := <-result:
		if ok {
			t.Error("Pop() after Shutdown on empty queue returned ok=true")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() was not woken by Shutdown")
	}
}

func TestBoundedQueue_Shutdown_WakesBlockedPush(t *testing.T) {
	q := New[int](1)
	q.Push(1)

	result := make(chan bool, 1)
	go func() {
		result <- q.Push(2)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Shutdown()

	select {
	case ok := <-result:
		if ok {
			t.Error("blocked Push() returned true after Shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("Push() was not woken by Shutdown")
	}

	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (rejected push must not enqueue)", q.Len())
	}
}

func TestBoundedQueue_Shutdown_WakesManyCallers(t *testing.T) {
	q := New[int](1)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Pop()
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Shutdown()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all blocked Pop() callers were woken")
	}
}

func TestBoundedQueue_Shutdown_DrainsRemaining(t *testing.T) {
	q := New[int](3)
	q.Push(1)
	q.Push(2)
	q.Shutdown()

	for _, want := range []int{1, 2} {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Errorf("Pop() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}

	got, ok := q.Pop()
	if ok {
		t.Errorf("Pop() on drained shut-down queue = (%d, true), want sentinel", got)
	}
}

func TestBoundedQueue_Shutdown_RejectsPushes(t *testing.T) {
	q := New[int](4)
	q.Shutdown()

	if q.Push(1) {
		t.Error("Push() accepted after Shutdown")
	}
	if q.TryPush(1) {
		t.Error("TryPush() accepted after Shutdown")
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestBoundedQueue_Shutdown_Idempotent(t *testing.T) {
	q := New[int](1)

	if q.IsShutdown() {
		t.Error("IsShutdown() = true before Shutdown")
	}

	// Should not panic on repeated close.
	q.Shutdown()
	q.Shutdown()
	q.Shutdown()

	if !q.IsShutdown() {
		t.Error("IsShutdown() = false after Shutdown")
	}
}
