package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewscribe/internal/model"
)

func TestBroadcasterDeliversInOrderToAllSubscribers(t *testing.T) {
	b := newBroadcaster()
	defer b.Shutdown()

	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	events := []model.ProgressEvent{
		{JobID: "j", Percent: 10, Message: "one"},
		{JobID: "j", Percent: 50, Message: "two"},
		{JobID: "j", Percent: 100, Message: "three"},
	}
	for _, e := range events {
		b.Emit(e)
	}

	for _, ch := range []<-chan model.ProgressEvent{ch1, ch2} {
		for _, want := range events {
			select {
			case got := <-ch:
				assert.Equal(t, want.Message, got.Message)
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for progress event")
			}
		}
	}
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := newBroadcaster()
	defer b.Shutdown()

	ch, unsub := b.Subscribe()
	unsub()

	_, ok := <-ch
	require.False(t, ok)
}

func TestBroadcasterLateSubscriberMissesEarlierEvents(t *testing.T) {
	b := newBroadcaster()
	defer b.Shutdown()

	b.Emit(model.ProgressEvent{Message: "before subscribing"})
	time.Sleep(20 * time.Millisecond) // let listen() drain it before anyone subscribes

	ch, unsub := b.Subscribe()
	defer unsub()
	b.Emit(model.ProgressEvent{Message: "after subscribing"})

	select {
	case got := <-ch:
		assert.Equal(t, "after subscribing", got.Message)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for progress event")
	}
}
