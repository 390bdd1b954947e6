// Package keylock provides mutual exclusion per string key. Unused keys are
// released so the map does not grow with every booking ever touched.
package keylock

import (
	"fmt"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

type Locker struct {
	mu   sync.Mutex
	keys map[string]*entry
}

func New() *Locker {
	return &Locker{keys: make(map[string]*entry)}
}

// Lock blocks until key is held and returns the matching unlock func.
func (l *Locker) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.keys, key)
			}
			l.mu.Unlock()
		})
	}
}

// Size returns the number of keys currently held or waited on.
func (l *Locker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// Lock order when two keys are needed: booking before room, transaction
// before item.

func RoomKey(id int64) string    { return fmt.Sprintf("room:%d", id) }
func BookingKey(id int64) string { return fmt.Sprintf("booking:%d", id) }
func TxKey(id int64) string      { return fmt.Sprintf("tx:%d", id) }
func ItemKey(id int64) string    { return fmt.Sprintf("item:%d", id) }
