package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	eb := NewEventBus(10)
	defer eb.Close()

	polls := eb.Subscribe(EventPoll)
	all := eb.SubscribeAll()

	eb.Publish(NewPollEvent("list_1", 1, 2, 1, 3, 30*time.Second))
	eb.Publish(&TransferEvent{BaseEvent: BaseEvent{EventType: EventTransferQueued, Time: time.Now()}, TaskID: "t1"})

	select {
	case ev := <-polls:
		pe, ok := ev.(*PollEvent)
		if !ok {
			t.Fatalf("event = %T, want *PollEvent", ev)
		}
		if pe.Pending != 2 || pe.Resolved != 1 || pe.Label != "list_1" {
			t.Errorf("poll event = %+v", pe)
		}
	case <-time.After(time.Second):
		t.Fatal("poll event not delivered")
	}

	if len(polls) != 0 {
		t.Errorf("typed subscriber received %d extra events", len(polls))
	}
	if len(all) != 2 {
		t.Errorf("all subscriber has %d events, want 2", len(all))
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	eb := NewEventBus(1)
	defer eb.Close()

	_ = eb.Subscribe(EventPoll)
	for i := 0; i < 3; i++ {
		eb.Publish(NewPollEvent("l", i, 0, 0, 0, 0))
	}
	if got := eb.DroppedEvents(); got != 2 {
		t.Errorf("DroppedEvents() = %d, want 2", got)
	}
}

func TestCloseClosesChannels(t *testing.T) {
	eb := NewEventBus(1)
	ch := eb.Subscribe(EventBatchComplete)
	eb.Close()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	eb.Publish(NewPollEvent("l", 0, 0, 0, 0, 0))
	eb.Close()

	late := eb.Subscribe(EventPoll)
	if _, ok := <-late; ok {
		t.Error("subscription after Close should be closed")
	}
}

func TestUnsubscribe(t *testing.T) {
	eb := NewEventBus(4)
	defer eb.Close()

	ch := eb.Subscribe(EventPoll)
	eb.Unsubscribe(EventPoll, ch)
	eb.Publish(NewPollEvent("l", 0, 0, 0, 0, 0))

	if _, ok := <-ch; ok {
		t.Error("unsubscribed channel should be closed and empty")
	}
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var eb *EventBus
	eb.Publish(NewPollEvent("l", 0, 0, 0, 0, 0))
}
