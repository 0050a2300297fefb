package ringbuffer

import (
	"sync"
	"testing"
	"time"
)

func TestNextPow2(t *testing.T) {
	cases := map[uint64]uint64{0: 1, 1: 1, 2: 2, 3: 4, 1000: 1024, 1 << 16: 1 << 16}
	for in, want := range cases {
		if got := nextPow2(in); got != want {
			t.Errorf("nextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestCapacityIsPowerOfTwo(t *testing.T) {
	rb := New(1000)
	c := rb.Capacity()
	if c&(c-1) != 0 {
		t.Fatalf("capacity %d is not a power of two", c)
	}
}

func TestPushPopOrder(t *testing.T) {
	rb := New(16)
	span := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	rb.Push(span)
	if rb.Size() != 8 {
		t.Fatalf("size = %d, want 8", rb.Size())
	}
	dest := make([]float32, 8)
	rb.Pop(dest)
	for i, v := range dest {
		if v != span[i] {
			t.Errorf("dest[%d] = %v, want %v", i, v, span[i])
		}
	}
	if rb.Size() != 0 {
		t.Fatalf("size after pop = %d, want 0", rb.Size())
	}
}

func TestPushOverflowDropsWhole(t *testing.T) {
	rb := New(8)
	rb.Push([]float32{1, 2, 3, 4, 5, 6})
	rb.Push([]float32{7, 8, 9}) // 6+3 > 8, whole span dropped
	if rb.Size() != 6 {
		t.Fatalf("size = %d, want 6 (overflowing push must be dropped whole)", rb.Size())
	}
}

func TestPopAtExactCapacity(t *testing.T) {
	rb := New(8)
	full := make([]float32, 8)
	for i := range full {
		full[i] = float32(i)
	}
	rb.Push(full)
	dest := make([]float32, 8)
	rb.Pop(dest)
	if rb.Size() != 0 {
		t.Fatalf("size = %d, want 0", rb.Size())
	}
}

func TestPopBlocksUntilAvailable(t *testing.T) {
	rb := New(16)
	var wg sync.WaitGroup
	dest := make([]float32, 4)
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		rb.Pop(dest)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before data was pushed")
	case <-time.After(50 * time.Millisecond):
	}

	rb.Push([]float32{1, 2, 3, 4})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Push")
	}
	wg.Wait()
}

func TestTryPopZeroFillsShortfall(t *testing.T) {
	rb := New(16)
	rb.Push([]float32{1, 2})
	dest := make([]float32, 4)
	n := rb.TryPop(dest)
	if n != 2 {
		t.Fatalf("TryPop returned %d, want 2", n)
	}
	if dest[0] != 1 || dest[1] != 2 || dest[2] != 0 || dest[3] != 0 {
		t.Fatalf("dest = %v, want [1 2 0 0]", dest)
	}
}

func TestClearResetsState(t *testing.T) {
	rb := New(16)
	rb.Push([]float32{1, 2, 3})
	rb.Clear()
	if rb.Size() != 0 {
		t.Fatalf("size after clear = %d, want 0", rb.Size())
	}
}

func TestWrapAround(t *testing.T) {
	rb := New(4)
	rb.Push([]float32{1, 2, 3})
	dest := make([]float32, 2)
	rb.Pop(dest) // head now at 2
	rb.Push([]float32{4, 5})
	rest := make([]float32, 3)
	rb.Pop(rest)
	want := []float32{3, 4, 5}
	for i, v := range want {
		if rest[i] != v {
			t.Errorf("rest[%d] = %v, want %v", i, rest[i], v)
		}
	}
}
