/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package telephony

import (
	"sync"

	"github.com/google/uuid"
)

// ActionKind identifies the type of native action
type ActionKind string

const (
	ActionStart    ActionKind = "start"
	ActionAnswer   ActionKind = "answer"
	ActionEnd      ActionKind = "end"
	ActionSetMuted ActionKind = "setMuted"
	ActionSetHeld  ActionKind = "setHeld"
	ActionPlayDTMF ActionKind = "playDTMF"
)

// ActionResult is the outcome of an action
type ActionResult struct {
	Fulfilled bool
	Err       error
}

// Action is a native action that must be fulfilled or failed exactly once.
// Only the first Fulfill or Fail takes effect; both report whether they did.
type Action interface {
	Kind() ActionKind
	CallToken() uuid.UUID
	Fulfill() bool
	Fail(err error) bool
	IsComplete() bool
	Result() (ActionResult, bool)
	// OnComplete registers fn to run after completion. If the action is
	// already complete fn runs immediately.
	OnComplete(fn func(ActionResult))
}

// BaseAction implements the exactly-once completion shared by all actions.
type BaseAction struct {
	kind  ActionKind
	token uuid.UUID

	mu        sync.Mutex
	completed bool
	result    ActionResult
	hooks     []func(ActionResult)
}

func newBaseAction(kind ActionKind, token uuid.UUID) *BaseAction {
	return &BaseAction{kind: kind, token: token}
}

// Kind returns the action kind
func (a *BaseAction) Kind() ActionKind { return a.kind }

// CallToken returns the token of the call the action targets
func (a *BaseAction) CallToken() uuid.UUID { return a.token }

// Fulfill marks the action successful.
func (a *BaseAction) Fulfill() bool {
	return a.complete(ActionResult{Fulfilled: true})
}

// Fail marks the action failed.
func (a *BaseAction) Fail(err error) bool {
	if err == nil {
		err = ErrInternal
	}
	return a.complete(ActionResult{Err: err})
}

func (a *BaseAction) complete(result ActionResult) bool {
	a.mu.Lock()
	if a.completed {
		a.mu.Unlock()
		return false
	}
	a.completed = true
	a.result = result
	hooks := a.hooks
	a.hooks = nil
	a.mu.Unlock()

	for _, fn := range hooks {
		fn(result)
	}
	return true
}

// IsComplete reports whether Fulfill or Fail took effect
func (a *BaseAction) IsComplete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.completed
}

// Result returns the outcome once the action is complete
func (a *BaseAction) Result() (ActionResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.completed
}

func (a *BaseAction) OnComplete(fn func(ActionResult)) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	if !a.completed {
		a.hooks = append(a.hooks, fn)
		a.mu.Unlock()
		return
	}
	result := a.result
	a.mu.Unlock()
	fn(result)
}

// StartCallAction asks to place an outgoing call
type StartCallAction struct {
	*BaseAction
	Handle string
	Video  bool
}

// NewStartCallAction creates a start action for a new call token
func NewStartCallAction(token uuid.UUID, handle string, video bool) *StartCallAction {
	return &StartCallAction{BaseAction: newBaseAction(ActionStart, token), Handle: handle, Video: video}
}

// AnswerCallAction asks to answer an incoming call
type AnswerCallAction struct {
	*BaseAction
}

func NewAnswerCallAction(token uuid.UUID) *AnswerCallAction {
	return &AnswerCallAction{BaseAction: newBaseAction(ActionAnswer, token)}
}

// EndCallAction asks to end or decline a call
type EndCallAction struct {
	*BaseAction
}

func NewEndCallAction(token uuid.UUID) *EndCallAction {
	return &EndCallAction{BaseAction: newBaseAction(ActionEnd, token)}
}

// SetMutedCallAction asks to change the mute state
type SetMutedCallAction struct {
	*BaseAction
	Muted bool
}

func NewSetMutedCallAction(token uuid.UUID, muted bool) *SetMutedCallAction {
	return &SetMutedCallAction{BaseAction: newBaseAction(ActionSetMuted, token), Muted: muted}
}

// SetHeldCallAction asks to change the hold state
type SetHeldCallAction struct {
	*BaseAction
	OnHold bool
}

func NewSetHeldCallAction(token uuid.UUID, onHold bool) *SetHeldCallAction {
	return &SetHeldCallAction{BaseAction: newBaseAction(ActionSetHeld, token), OnHold: onHold}
}

// PlayDTMFCallAction asks to send a digit string
type PlayDTMFCallAction struct {
	*BaseAction
	Digits string
}

func NewPlayDTMFCallAction(token uuid.UUID, digits string) *PlayDTMFCallAction {
	return &PlayDTMFCallAction{BaseAction: newBaseAction(ActionPlayDTMF, token), Digits: digits}
}
