package service

import "testing"

func TestEventBusTopics(t *testing.T) {
	bus := NewEventBus()
	a, cancelA := bus.Subscribe("a")
	all, cancelAll := bus.Subscribe("")
	defer cancelAll()

	bus.Publish(Event{Action: "markers", ID: "a"})
	bus.Publish(Event{Action: "tiles", ID: "b"})

	if e := <-a; e.ID != "a" || e.Action != "markers" {
		t.Fatalf("topic a got %+v", e)
	}
	select {
	case e := <-a:
		t.Fatalf("topic a received foreign event %+v", e)
	default:
	}
	if got := len(all); got != 2 {
		t.Fatalf("wildcard subscriber got %d events, want 2", got)
	}

	cancelA()
	cancelA()
	if _, ok := <-a; ok {
		t.Fatal("channel still open after cancel")
	}
	if n := bus.Subscribers("a"); n != 0 {
		t.Fatalf("subscribers(a) = %d", n)
	}
}

func TestEventBusDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	_, cancel := bus.Subscribe("s")
	defer cancel()

	for range 20 {
		bus.Publish(Event{Action: "markers", ID: "s"})
	}
	if got := bus.Dropped(); got != 4 {
		t.Fatalf("dropped = %d, want 4", got)
	}
}
