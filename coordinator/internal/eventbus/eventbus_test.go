package eventbus

import "testing"

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New()
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Publish(Event{Kind: "file.updated", Payload: 42})

	for _, s := range []*Subscription{s1, s2} {
		select {
		case evt := <-s.Events():
			if evt.Kind != "file.updated" {
				t.Errorf("unexpected event kind %q", evt.Kind)
			}
		default:
			t.Error("expected an event to be delivered")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	s := b.Subscribe()
	b.Unsubscribe(s)

	if _, open := <-s.Events(); open {
		t.Error("expected channel to be closed after Unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestFullBacklogDropsSubscriberWithoutBlocking(t *testing.T) {
	b := New()
	s := b.Subscribe()

	for i := 0; i < backlogCap+10; i++ {
		b.Publish(Event{Kind: "tick", Payload: i})
	}

	if !s.Dropped() {
		t.Error("expected subscriber to be dropped after exceeding backlog")
	}
	if b.SubscriberCount() != 0 {
		t.Errorf("expected dropped subscriber removed from bus, got %d remaining", b.SubscriberCount())
	}
}

func TestPublishWithNoSubscribersDoesNotPanic(t *testing.T) {
	b := New()
	b.Publish(Event{Kind: "stats.updated", Payload: nil})
}
