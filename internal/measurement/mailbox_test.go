package measurement

import (
	"sync"
	"testing"
	"time"
)

func TestMailbox_MostRecentWins(t *testing.T) {
	mb := NewMailbox()
	sub := mb.Subscribe()

	mb.Publish(0.1)
	mb.Publish(0.2)
	mb.Publish(0.3)

	got := <-sub
	if got.Value != 0.3 {
		t.Errorf("Expected latest value 0.3, got %v", got.Value)
	}
	if got.Seq != 3 {
		t.Errorf("Expected seq 3, got %d", got.Seq)
	}

	select {
	case m := <-sub:
		t.Errorf("Expected no further values, got %+v", m)
	default:
	}
}

func TestMailbox_LateSubscriberSeesLatestOnly(t *testing.T) {
	mb := NewMailbox()
	if _, ok := mb.Latest(); ok {
		t.Fatal("Expected no latest value on empty mailbox")
	}

	mb.Publish(0.5)
	mb.Publish(0.7)

	sub := mb.Subscribe()
	got := <-sub
	if got.Value != 0.7 {
		t.Errorf("Expected 0.7, got %v", got.Value)
	}

	latest, ok := mb.Latest()
	if !ok || latest.Value != 0.7 {
		t.Errorf("Expected Latest() = 0.7, got %v (ok=%v)", latest.Value, ok)
	}
}

func TestMailbox_MultipleSubscribersAndOrdering(t *testing.T) {
	mb := NewMailbox()
	a := mb.Subscribe()
	b := mb.Subscribe()

	var wg sync.WaitGroup
	var lastA uint64
	wg.Add(1)
	go func() {
		defer wg.Done()
		for m := range a {
			if m.Seq <= lastA {
				t.Errorf("Sequence went backwards: %d after %d", m.Seq, lastA)
			}
			lastA = m.Seq
		}
	}()

	for i := 0; i < 1000; i++ {
		mb.Publish(float64(i) / 1000)
	}

	select {
	case m := <-b:
		if m.Seq != 1000 {
			t.Errorf("Expected idle subscriber to hold seq 1000, got %d", m.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("Subscriber b received nothing")
	}

	mb.Close()
	wg.Wait()
	if lastA == 0 {
		t.Error("Subscriber a received nothing")
	}
}

func TestMailbox_UnsubscribeAndClose(t *testing.T) {
	mb := NewMailbox()
	sub := mb.Subscribe()
	mb.Unsubscribe(sub)

	if _, ok := <-sub; ok {
		t.Error("Expected closed channel after Unsubscribe")
	}

	mb.Close()
	mb.Close()
	mb.Publish(1)

	late := mb.Subscribe()
	if _, ok := <-late; ok {
		t.Error("Expected closed channel when subscribing after Close")
	}
}
