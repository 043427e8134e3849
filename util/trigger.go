package util

import "time"

// Trigger records an interrupt line firing: which line, how often it has
// fired so far and when it fired last.
type Trigger struct {
	ID        string
	Count     int
	Timestamp time.Time
}

func NewTrigger(id string, count int, at time.Time) *Trigger {
	return &Trigger{ID: id, Count: count, Timestamp: at}
}
