package eventbus

import (
	"testing"
	"time"

	"github.com/example/van-notify/internal/models"
)

func TestPublishReachesSubscriber(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: "notification.embarked", Notification: models.Notification{ID: "n1"}})

	select {
	case e := <-ch:
		if e.Notification.ID != "n1" {
			t.Fatalf("unexpected event %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatal("publish must stamp the time")
		}
	case <-time.After(time.Second):
		t.Fatal("event never arrived")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: "notification.embarked"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent
	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed after unsubscribe")
	}
	// publishing after unsubscribe must not panic
	b.Publish(Event{Type: "notification.embarked"})
}
