package queue

import (
	"testing"
	"time"
)

func TestPushTryPop(t *testing.T) {
	q := New[int](0)
	if !q.Push(1) {
		t.Fatal("push on open queue should succeed")
	}
	v, ok := q.TryPop()
	if !ok || v != 1 {
		t.Fatalf("got %v, %v want 1, true", v, ok)
	}
	if _, ok := q.TryPop(); ok {
		t.Fatal("tryPop on empty queue should not return ok")
	}
}

func TestBoundedPushFails(t *testing.T) {
	q := New[int](1)
	if !q.Push(1) {
		t.Fatal("first push should succeed")
	}
	if q.Push(2) {
		t.Fatal("push on full bounded queue should fail")
	}
}

func TestWaitPopBlocksUntilPush(t *testing.T) {
	q := New[int](0)
	done := make(chan int, 1)
	go func() {
		v, ok := q.WaitPop()
		if ok {
			done <- v
		} else {
			done <- -1
		}
	}()
	time.Sleep(20 * time.Millisecond)
	q.Push(7)
	select {
	case v := <-done:
		if v != 7 {
			t.Fatalf("got %d want 7", v)
		}
	case <-time.After(time.Second):
		t.Fatal("waitPop never returned")
	}
}

func TestCloseWakesWaiters(t *testing.T) {
	q := New[int](0)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.WaitPop()
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)
	q.Close()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("waitPop on closed empty queue should report ok=false")
		}
	case <-time.After(time.Second):
		t.Fatal("close never woke waiter")
	}
}

func TestPushAfterCloseFails(t *testing.T) {
	q := New[int](0)
	q.Close()
	if q.Push(1) {
		t.Fatal("push after close should fail")
	}
}

func TestCloseDrainsBufferedItems(t *testing.T) {
	q := New[int](0)
	q.Push(1)
	q.Push(2)
	q.Close()
	v, ok := q.WaitPop()
	if !ok || v != 1 {
		t.Fatalf("expected buffered item 1, got %v %v", v, ok)
	}
	v, ok = q.WaitPop()
	if !ok || v != 2 {
		t.Fatalf("expected buffered item 2, got %v %v", v, ok)
	}
	if _, ok = q.WaitPop(); ok {
		t.Fatal("queue should report closed once drained")
	}
}
