package util

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatest_SendAndValue(t *testing.T) {
	l := NewLatest[int]()
	assert.Zero(t, l.Value())
	assert.False(t, l.HasPending())

	l.Send(123)
	assert.Equal(t, 123, l.Value())
	assert.True(t, l.HasPending())
}

func TestLatest_NotificationCoalesces(t *testing.T) {
	l := NewLatest[string]()
	l.Send("event1")
	l.Send("event2")
	l.Send("event3")

	select {
	case <-l.Channel():
	default:
		t.Fatal("should have received a notification")
	}
	select {
	case <-l.Channel():
		t.Fatal("several sends give one notification")
	default:
	}
	assert.Equal(t, "event3", l.Value(), "Value should be the last event sent")
}

func TestLatest_Concurrency(t *testing.T) {
	l := NewLatest[int]()
	done := make(chan struct{})

	go func() {
		for i := 0; i < 1000; i++ {
			l.Send(i)
		}
		close(done)
	}()

	lastRead := -1
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-l.Channel():
				val := l.Value()
				if val < lastRead {
					t.Errorf("read a stale value: got %d, last was %d", val, lastRead)
				}
				lastRead = val
			case <-done:
				return
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, 999, l.Value(), "Final value should be 999")
}

func TestBatch_ConsumeValues(t *testing.T) {
	b := NewBatch[string, *Trigger]()
	now := time.Now()
	b.Send("INT0", NewTrigger("INT0", 1, now))
	b.Send("INT0", NewTrigger("INT0", 2, now))
	b.Send("INT1", NewTrigger("INT1", 1, now))

	assert.True(t, b.HasPending())
	values := b.ConsumeValues()
	assert.Len(t, values, 2)
	assert.Equal(t, 2, values["INT0"].Count, "later send replaces earlier")
	assert.False(t, b.HasPending(), "consuming drops the notification")

	assert.Empty(t, b.ConsumeValues())
}

func TestBatch_ConcurrentWriters(t *testing.T) {
	b := NewBatch[string, int]()
	var wg sync.WaitGroup
	const writers, writes = 10, 100

	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < writes; j++ {
				b.Send(fmt.Sprintf("w%d-k%d", id, j), j)
			}
		}(i)
	}
	wg.Wait()

	<-b.Channel()
	assert.Len(t, b.ConsumeValues(), writers*writes)
}
