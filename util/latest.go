// Package util holds the mailboxes that carry state from the bus goroutines
// to the monitor.
package util

import "sync"

// Latest is a single slot mailbox. Send never blocks and overwrites what
// was not read yet, so a slow reader only ever sees the newest value.
type Latest[T any] struct {
	mu     sync.Mutex
	value  T
	notify chan struct{}
}

func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{notify: make(chan struct{}, 1)}
}

func (l *Latest[T]) Send(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.value = v
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Channel fires once after one or more Sends.
func (l *Latest[T]) Channel() <-chan struct{} {
	return l.notify
}

func (l *Latest[T]) Value() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

func (l *Latest[T]) HasPending() bool {
	return len(l.notify) > 0
}

// Batch collects keyed values until they are consumed. A later Send for the
// same key replaces the earlier one.
type Batch[K comparable, V any] struct {
	mu     sync.Mutex
	values map[K]V
	notify chan struct{}
}

func NewBatch[K comparable, V any]() *Batch[K, V] {
	return &Batch[K, V]{
		values: make(map[K]V),
		notify: make(chan struct{}, 1),
	}
}

func (b *Batch[K, V]) Send(key K, v V) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.values[key] = v
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *Batch[K, V]) Channel() <-chan struct{} {
	return b.notify
}

// ConsumeValues returns everything sent since the last call and empties the
// batch, including a pending notification.
func (b *Batch[K, V]) ConsumeValues() map[K]V {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.values
	b.values = make(map[K]V)
	select {
	case <-b.notify:
	default:
	}
	return out
}

func (b *Batch[K, V]) HasPending() bool {
	return len(b.notify) > 0
}
