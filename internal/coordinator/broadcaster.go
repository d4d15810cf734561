package coordinator

import (
	"interviewscribe/internal/model"
	"interviewscribe/pkg/logger"
)

// subscription is one progress-event listener.
type subscription struct {
	channel chan model.ProgressEvent
}

// broadcaster fans progress events out to every subscriber in emission
// order, non-blocking on slow readers. A register/unregister/broadcast
// triad run on a single goroutine so subscriber bookkeeping never races
// with delivery.
type broadcaster struct {
	register   chan subscription
	unregister chan subscription
	broadcast  chan model.ProgressEvent
	shutdown   chan struct{}
}

func newBroadcaster() *broadcaster {
	b := &broadcaster{
		register:   make(chan subscription),
		unregister: make(chan subscription),
		broadcast:  make(chan model.ProgressEvent, 16),
		shutdown:   make(chan struct{}),
	}
	go b.listen()
	return b
}

func (b *broadcaster) listen() {
	subs := make(map[chan model.ProgressEvent]bool)
	for {
		select {
		case sub := <-b.register:
			subs[sub.channel] = true
		case sub := <-b.unregister:
			if subs[sub.channel] {
				delete(subs, sub.channel)
				close(sub.channel)
			}
		case evt := <-b.broadcast:
			for ch := range subs {
				select {
				case ch <- evt:
				default:
					logger.Warn("skipping slow progress subscriber", "job_id", evt.JobID)
				}
			}
		case <-b.shutdown:
			for ch := range subs {
				close(ch)
			}
			return
		}
	}
}

// Subscribe returns a channel that receives every future progress event in
// emission order, plus a func to stop delivery and release it.
func (b *broadcaster) Subscribe() (<-chan model.ProgressEvent, func()) {
	ch := make(chan model.ProgressEvent, 32)
	sub := subscription{channel: ch}
	b.register <- sub
	return ch, func() { b.unregister <- sub }
}

func (b *broadcaster) Emit(evt model.ProgressEvent) {
	select {
	case b.broadcast <- evt:
	case <-b.shutdown:
	}
}

func (b *broadcaster) Shutdown() {
	close(b.shutdown)
}
