package sim

import (
	"sync"

	"github.com/gammazero/deque"
)

// EchoPeer answers every byte with the one it received on the previous
// clock, like a slave that writes back what it just read.
type EchoPeer struct {
	mu   sync.Mutex
	last byte
}

func NewEchoPeer() *EchoPeer {
	return &EchoPeer{last: Floating}
}

func (e *EchoPeer) Shift(mosi byte) byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.last
	e.last = mosi
	return out
}

// ScriptPeer answers from a queue of prepared bytes and Floating once the
// queue is empty. Everything it receives is recorded.
type ScriptPeer struct {
	mu       sync.Mutex
	replies  deque.Deque[byte]
	received []byte
}

func NewScriptPeer(replies ...byte) *ScriptPeer {
	p := &ScriptPeer{}
	p.Queue(replies...)
	return p
}

// Queue appends bytes to be sent on the following clocks.
func (p *ScriptPeer) Queue(b ...byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range b {
		p.replies.PushBack(c)
	}
}

func (p *ScriptPeer) Shift(mosi byte) byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, mosi)
	if p.replies.Len() == 0 {
		return Floating
	}
	return p.replies.PopFront()
}

// Received returns a copy of all bytes clocked in so far.
func (p *ScriptPeer) Received() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.received...)
}

// Remaining is the number of queued replies not yet sent.
func (p *ScriptPeer) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.replies.Len()
}

// DeviceFunc adapts a function to a Device.
type DeviceFunc func(mosi byte) byte

func (f DeviceFunc) Shift(mosi byte) byte { return f(mosi) }
