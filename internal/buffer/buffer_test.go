package buffer

import (
	"reflect"
	"sync"
	"testing"
)

func TestQueueDropsOldest(t *testing.T) {
	q := New[int](3)
	for i := 1; i <= 3; i++ {
		if q.Push(i) {
			t.Fatalf("push %d reported a drop", i)
		}
	}
	if !q.Push(4) {
		t.Fatal("expected drop when full")
	}

	if got := q.Drain(); !reflect.DeepEqual(got, []int{2, 3, 4}) {
		t.Fatalf("Drain() = %v", got)
	}
	if !q.IsEmpty() {
		t.Fatal("queue not empty after drain")
	}
	if got := q.Drain(); got != nil {
		t.Fatalf("second Drain() = %v, want nil", got)
	}
}

func TestQueuePop(t *testing.T) {
	q := New[string](2)
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop on empty queue succeeded")
	}
	q.Push("a")
	q.Push("b")
	if v, ok := q.Pop(); !ok || v != "a" {
		t.Fatalf("Pop() = %q, %v", v, ok)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d", q.Len())
	}
}

func TestQueueZeroCapacity(t *testing.T) {
	q := New[int](0)
	q.Push(1)
	q.Push(2)
	if got := q.Drain(); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("Drain() = %v", got)
	}
}

func TestQueueConcurrentPush(t *testing.T) {
	q := New[int](50)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(base*100 + j)
			}
		}(i)
	}
	wg.Wait()
	if q.Len() != 50 {
		t.Fatalf("Len() = %d, want 50", q.Len())
	}
}
