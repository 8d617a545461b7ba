package reactor

import (
	"testing"
	"time"
)

func TestThreadBridgeFIFOPerSubmitter(t *testing.T) {
	d := New(500, nil)

	var order []int
	collected := make(chan struct{})

	go func() {
		for i := 0; i < 20; i++ {
			i := i
			d.Threads.CallFromThread(func() {
				order = append(order, i)
				if i == 19 {
					close(collected)
					d.BreakLoop()
				}
			})
		}
	}()

	if err := d.Loop(time.Second, 0); err != nil {
		t.Fatalf("Loop returned error: %v", err)
	}

	<-collected
	if len(order) != 20 {
		t.Fatalf("expected 20 callbacks delivered, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("FIFO order violated at index %d: got %d", i, v)
		}
	}
}
