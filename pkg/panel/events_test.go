package panel

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestEventsRunsInPostOrder checks that posted events and calls share one
// ordered queue.
func TestEventsRunsInPostOrder(t *testing.T) {
	t.Parallel()

	ev := NewEvents(8)
	var seen []string
	ev.On("a", func(p any) { seen = append(seen, "a:"+p.(string)) })
	ev.On("b", func(any) { seen = append(seen, "b") })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ev.Run(ctx)

	if err := ev.Post(ctx, "a", "1"); err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = ev.Post(ctx, "b", nil)
	_ = ev.Post(ctx, "nobody", nil)

	var got []string
	if err := ev.Call(ctx, func() { got = append(got, seen...) }); err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b" {
		t.Fatalf("order = %v", got)
	}
	if !ev.Has("a") || ev.Has("nobody") {
		t.Fatal("Has reports wrong subscribers")
	}
}

func TestEventsStopped(t *testing.T) {
	t.Parallel()

	ev := NewEvents(0)
	ctx, cancel := context.WithCancel(context.Background())
	go ev.Run(ctx)
	cancel()

	select {
	case <-ev.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	if err := ev.Post(context.Background(), "a", nil); !errors.Is(err, ErrStopped) {
		t.Fatalf("post after stop = %v, want ErrStopped", err)
	}
	if err := ev.Call(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("call after stop = %v, want ErrStopped", err)
	}
}
