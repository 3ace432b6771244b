/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package push receives VoIP pushes for the softphone. A Listener keeps a
// websocket open to a push gateway and feeds the Registry, which fans tokens
// and payloads out to observers and hands payloads to a Delegate (normally
// the calling.Orchestrator). Payloads that arrive before a delegate is set
// are buffered and delivered in order once it is.
package push

import (
	"fmt"
	"sync"

	"github.com/automat-berlin/afone/calling"
	"github.com/automat-berlin/afone/phonesdk"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Observer is told about push credential changes and every payload.
type Observer interface {
	DidUpdatePushToken(token []byte)
	DidReceivePayload(payload []byte)
	DidInvalidatePushToken()
}

// Delegate handles incoming push payloads.
type Delegate interface {
	HandlePushPayload(payload []byte)
}

// RegistryConfig holds configuration for the Registry
type RegistryConfig struct {
	// Logger for registry diagnostics. If nil, the phonesdk default logger is used.
	Logger phonesdk.Logger
}

// Registry tracks the push token and routes payloads.
type Registry struct {
	mu        sync.RWMutex
	logger    phonesdk.Logger
	id        string
	token     []byte
	delegate  Delegate
	pending   [][]byte
	observers *calling.ObserverSet[Observer]
}

// NewRegistry creates a Registry with a fresh registration id.
func NewRegistry(config *RegistryConfig) (*Registry, error) {
	if config == nil {
		config = &RegistryConfig{}
	}
	id, err := gonanoid.New(21)
	if err != nil {
		return nil, fmt.Errorf("failed to create registration id: %w", err)
	}
	return &Registry{
		logger:    phonesdk.OrDefault(config.Logger),
		id:        id,
		observers: calling.NewObserverSet[Observer](),
	}, nil
}

// ID returns the registration id sent to the push gateway.
func (r *Registry) ID() string {
	return r.id
}

func (r *Registry) AddObserver(observer Observer) {
	r.observers.Add(observer)
}

func (r *Registry) RemoveObserver(observer Observer) {
	r.observers.Remove(observer)
}

func (r *Registry) RemoveAllObservers() {
	r.observers.RemoveAll()
}

// SetDelegate sets the payload delegate and flushes buffered payloads to it
// in arrival order. A nil delegate buffers again.
func (r *Registry) SetDelegate(delegate Delegate) {
	r.mu.Lock()
	r.delegate = delegate
	if delegate == nil {
		r.mu.Unlock()
		return
	}
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, payload := range pending {
		delegate.HandlePushPayload(payload)
	}
}

// Token returns the current push token.
func (r *Registry) Token() ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.token == nil {
		return nil, false
	}
	return append([]byte(nil), r.token...), true
}

// Pending returns the number of buffered payloads.
func (r *Registry) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

// UpdateToken stores new push credentials and notifies observers.
func (r *Registry) UpdateToken(token []byte) {
	token = append([]byte(nil), token...)
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()

	r.logger.Printf("push: token updated for registration %s", r.id)
	r.observers.Notify(func(o Observer) {
		o.DidUpdatePushToken(token)
	})
}

// Deliver routes an incoming payload to observers and then to the delegate,
// or buffers it while no delegate is set.
func (r *Registry) Deliver(payload []byte) {
	r.observers.Notify(func(o Observer) {
		o.DidReceivePayload(payload)
	})

	r.mu.Lock()
	delegate := r.delegate
	if delegate == nil {
		r.pending = append(r.pending, payload)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	delegate.HandlePushPayload(payload)
}

// InvalidateToken drops the token and notifies observers.
func (r *Registry) InvalidateToken() {
	r.mu.Lock()
	r.token = nil
	r.mu.Unlock()

	r.observers.Notify(func(o Observer) {
		o.DidInvalidatePushToken()
	})
}
