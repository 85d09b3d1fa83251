package jdi

import (
	"errors"
	"sync"
)

// lazy holds a value fetched from the VM on first use. Successful results and
// ErrAbsentInformation are kept; any other failure is retried on the next call.
type lazy[T any] struct {
	mu   sync.Mutex
	done bool
	val  T
	err  error
}

func (l *lazy[T]) get(load func() (T, error)) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return l.val, l.err
	}
	v, err := load()
	if err == nil || errors.Is(err, ErrAbsentInformation) {
		l.done, l.val, l.err = true, v, err
	}
	return v, err
}

// set stores a value learned as a side effect of another reply.
func (l *lazy[T]) set(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done {
		l.done, l.val = true, v
	}
}
