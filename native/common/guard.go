package common

import (
	"errors"
	"sync/atomic"
)

var (
	ErrModulePaused  = errors.New("module paused")
	ErrReentrantCall = errors.New("reentrant call")
)

// PauseView reports whether a native module has been administratively paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects mutating operations while the named module is paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// ReentrancyLatch serialises every mutating entry point of an engine behind a
// single process-wide flag. The latch is deliberately not per-account: two
// executions touching disjoint data still may not interleave.
type ReentrancyLatch struct {
	held atomic.Bool
}

// Acquire takes the latch, failing with ErrReentrantCall when it is already
// held. Callers must pair a successful Acquire with Release on every exit
// path.
func (l *ReentrancyLatch) Acquire() error {
	if l == nil {
		return nil
	}
	if !l.held.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

// Release frees the latch.
func (l *ReentrancyLatch) Release() {
	if l == nil {
		return
	}
	l.held.Store(false)
}
