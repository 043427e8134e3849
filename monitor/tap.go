package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"lautenbacher.net/avrhal/platform"
	"lautenbacher.net/avrhal/util"
)

const maxHistory = 500

// Record is one byte exchanged through a Tap.
type Record struct {
	At   time.Time
	MOSI byte
	MISO byte
	Took time.Duration
	Err  error
}

// Tap wraps a transceiver and remembers the last exchanges.
type Tap struct {
	platform.Transceiver
	mu      sync.Mutex
	history deque.Deque[Record]
	updates *util.Latest[Record]
}

func NewTap(t platform.Transceiver) *Tap {
	tap := &Tap{Transceiver: t, updates: util.NewLatest[Record]()}
	tap.history.Grow(maxHistory)
	return tap
}

func (t *Tap) record(r Record) {
	t.mu.Lock()
	if t.history.Len() == maxHistory {
		t.history.PopFront()
	}
	t.history.PushBack(r)
	t.mu.Unlock()
	t.updates.Send(r)
}

func (t *Tap) Exchange(out byte) byte {
	start := time.Now()
	in := t.Transceiver.Exchange(out)
	t.record(Record{At: start, MOSI: out, MISO: in, Took: time.Since(start)})
	return in
}

func (t *Tap) ExchangeContext(ctx context.Context, out byte) (byte, error) {
	start := time.Now()
	in, err := t.Transceiver.ExchangeContext(ctx, out)
	t.record(Record{At: start, MOSI: out, MISO: in, Took: time.Since(start), Err: err})
	return in, err
}

// History returns the remembered exchanges, oldest first.
func (t *Tap) History() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, t.history.Len())
	for i := range out {
		out[i] = t.history.At(i)
	}
	return out
}

// Updates fires after new exchanges and holds the newest one.
func (t *Tap) Updates() *util.Latest[Record] {
	return t.updates
}
