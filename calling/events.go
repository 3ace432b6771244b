/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"reflect"
	"sync"
	"unsafe"
	"weak"
)

// ---- Observer interfaces ----

// CallObserver is notified of every actual state change of a Call.
type CallObserver interface {
	CallStateChanged(state CallState, call *Call)
}

// VideoObserver is an optional extension of CallObserver for video flag changes.
type VideoObserver interface {
	CallSendingVideoChanged(call *Call, sending bool)
	CallReceivingVideoChanged(call *Call, receiving bool)
}

// DurationObserver receives the talking-time ticks of a Call.
type DurationObserver interface {
	DurationChanged(seconds int, call *Call)
	DurationStringChanged(formatted string, call *Call)
}

// IncomingCallObserver is notified of adapter-originated call events.
type IncomingCallObserver interface {
	GotIncomingCall(call *Call)
	DidAnswerCall(call *Call)
	GotMissedCall(call *Call)
}

// OutgoingCallObserver is an optional extension notified when CreateCall succeeds.
type OutgoingCallObserver interface {
	DidCreateOutgoingCall(call *Call)
}

// ---- Observer Set ----

// ObserverSet is a set of observers keyed by identity. Notify iterates over a
// snapshot, so observers may register or unregister while a fan-out runs.
//
// Pointer observers are held weakly: the set never keeps one alive, and an
// observer that has been collected is skipped and dropped. Observers of any
// other kind are held as given.
type ObserverSet[T comparable] struct {
	mu        sync.RWMutex
	observers []observerRef[T]
}

type observerRef[T comparable] struct {
	strong T
	elem   reflect.Type // pointee type of a weakly held observer
	ref    weak.Pointer[byte]
}

func holdObserver[T comparable](observer T) observerRef[T] {
	v := reflect.ValueOf(observer)
	if v.Kind() != reflect.Pointer || v.Type().Elem().Size() == 0 {
		return observerRef[T]{strong: observer}
	}
	return observerRef[T]{
		elem: v.Type().Elem(),
		ref:  weak.Make((*byte)(v.UnsafePointer())),
	}
}

// get returns the observer, or false once a weakly held one was collected.
func (r observerRef[T]) get() (T, bool) {
	if r.elem == nil {
		return r.strong, true
	}
	p := r.ref.Value()
	if p == nil {
		var zero T
		return zero, false
	}
	return reflect.NewAt(r.elem, unsafe.Pointer(p)).Interface().(T), true
}

// NewObserverSet creates an empty ObserverSet.
func NewObserverSet[T comparable]() *ObserverSet[T] {
	return &ObserverSet[T]{}
}

// Add registers an observer. Adding the same observer twice is a no-op.
func (s *ObserverSet[T]) Add(observer T) {
	var zero T
	if observer == zero {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(observer) >= 0 {
		return
	}
	s.observers = append(s.observers, holdObserver(observer))
}

// Remove unregisters an observer. Unknown observers are ignored.
func (s *ObserverSet[T]) Remove(observer T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(observer); i >= 0 {
		s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
	}
}

// indexLocked prunes collected observers and returns the position of
// observer, or -1.
func (s *ObserverSet[T]) indexLocked(observer T) int {
	found := -1
	live := s.observers[:0:0]
	for _, r := range s.observers {
		o, ok := r.get()
		if !ok {
			continue
		}
		if o == observer {
			found = len(live)
		}
		live = append(live, r)
	}
	s.observers = live
	return found
}

// RemoveAll unregisters every observer.
func (s *ObserverSet[T]) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = nil
}

// Len returns the number of registered observers that are still alive.
func (s *ObserverSet[T]) Len() int {
	return len(s.Snapshot())
}

// Snapshot returns the live observers in registration order.
func (s *ObserverSet[T]) Snapshot() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.observers))
	for _, r := range s.observers {
		if o, ok := r.get(); ok {
			out = append(out, o)
		}
	}
	return out
}

// Notify calls fn for every observer in a snapshot of the set.
func (s *ObserverSet[T]) Notify(fn func(T)) {
	for _, o := range s.Snapshot() {
		fn(o)
	}
}
