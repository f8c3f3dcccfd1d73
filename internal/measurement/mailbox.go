// Package measurement publishes amplitude readings with most-recent-wins semantics.
package measurement

import (
	"sync"
	"time"
)

// Measurement is one peak amplitude reading derived from a single audio block.
type Measurement struct {
	Value float64   `json:"value"`
	Seq   uint64    `json:"seq"`
	At    time.Time `json:"at"`
}

// Mailbox holds only the latest Measurement. Every subscriber owns a one-slot
// channel; a newer value replaces an unread older one, so Publish never blocks.
type Mailbox struct {
	mu          sync.Mutex
	latest      Measurement
	hasLatest   bool
	seq         uint64
	subscribers map[chan Measurement]struct{}
	closed      bool
	now         func() time.Time
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		subscribers: make(map[chan Measurement]struct{}),
		now:         time.Now,
	}
}

// Publish stamps value with the next sequence number and delivers it.
func (mb *Mailbox) Publish(value float64) Measurement {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.seq++
	m := Measurement{Value: value, Seq: mb.seq, At: mb.now()}
	if mb.closed {
		return m
	}

	mb.latest = m
	mb.hasLatest = true
	for ch := range mb.subscribers {
		offer(ch, m)
	}
	return m
}

// Latest returns the most recent measurement, if any.
func (mb *Mailbox) Latest() (Measurement, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.latest, mb.hasLatest
}

// Subscribe returns a channel receiving the newest measurement. If a value was
// already published it is waiting in the channel. The channel is closed by
// Unsubscribe or Close.
func (mb *Mailbox) Subscribe() <-chan Measurement {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	ch := make(chan Measurement, 1)
	if mb.closed {
		close(ch)
		return ch
	}
	if mb.hasLatest {
		ch <- mb.latest
	}
	mb.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe detaches and closes a channel returned by Subscribe.
func (mb *Mailbox) Unsubscribe(sub <-chan Measurement) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	for ch := range mb.subscribers {
		if (<-chan Measurement)(ch) == sub {
			delete(mb.subscribers, ch)
			close(ch)
			return
		}
	}
}

// Close closes every subscriber channel. Later publishes are dropped.
func (mb *Mailbox) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.closed {
		return
	}
	mb.closed = true
	for ch := range mb.subscribers {
		close(ch)
	}
	mb.subscribers = nil
}

// offer puts m into ch, evicting an unread value first. Only Publish sends on
// subscriber channels and it holds the mailbox lock, so the retry cannot race
// another sender.
func offer(ch chan Measurement, m Measurement) {
	select {
	case ch <- m:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- m:
	default:
	}
}
