/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package telephony

import (
	"sync"

	"github.com/automat-berlin/afone/phonesdk"
	"github.com/google/uuid"
)

// ReportKind identifies a report received by a Stack
type ReportKind string

const (
	ReportNewIncoming       ReportKind = "newIncoming"
	ReportStartedConnecting ReportKind = "startedConnecting"
	ReportConnected         ReportKind = "connected"
	ReportUpdated           ReportKind = "updated"
	ReportEnded             ReportKind = "ended"
)

// Report is one provider report recorded by a Stack
type Report struct {
	Kind   ReportKind
	Token  uuid.UUID
	Update CallUpdate
	Reason EndReason
}

// IncomingFilter decides whether a Stack accepts a reported incoming call.
// A non-nil error refuses the call. It runs with the Stack locked and must
// not call back into it.
type IncomingFilter func(token uuid.UUID, update CallUpdate) error

// Stack is an in-process native telephony stack for hosts without a system
// call UI. It implements both Provider and Controller, performs requested
// actions synchronously on its delegate and activates audio once a call is
// started or answered.
type Stack struct {
	mu sync.Mutex

	logger      phonesdk.Logger
	delegate    ProviderDelegate
	filter      IncomingFilter
	calls       map[uuid.UUID]bool // token -> incoming
	reports     []Report
	audioActive bool
	invalidated bool
}

// NewStack creates an empty Stack
func NewStack(logger phonesdk.Logger) *Stack {
	return &Stack{
		logger: phonesdk.OrDefault(logger),
		calls:  make(map[uuid.UUID]bool),
	}
}

// SetDelegate sets the delegate that performs actions
func (s *Stack) SetDelegate(delegate ProviderDelegate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate = delegate
}

// SetIncomingFilter installs a filter consulted by ReportNewIncomingCall
func (s *Stack) SetIncomingFilter(filter IncomingFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = filter
}

// Reports returns a copy of all reports received so far
func (s *Stack) Reports() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Report, len(s.reports))
	copy(out, s.reports)
	return out
}

// Calls returns the tokens of the calls the stack currently tracks
func (s *Stack) Calls() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := make([]uuid.UUID, 0, len(s.calls))
	for token := range s.calls {
		tokens = append(tokens, token)
	}
	return tokens
}

// AudioActive reports whether the stack activated audio
func (s *Stack) AudioActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioActive
}

func (s *Stack) record(report Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
}

// ---- Provider ----

func (s *Stack) ReportNewIncomingCall(token uuid.UUID, update CallUpdate, done func(error)) {
	s.mu.Lock()
	var err error
	switch {
	case s.invalidated:
		err = ErrStackInvalidated
	case hasKey(s.calls, token):
		err = ErrCallExists
	case s.filter != nil:
		err = s.filter(token, update)
	}
	if err == nil {
		s.calls[token] = true
		s.reports = append(s.reports, Report{Kind: ReportNewIncoming, Token: token, Update: update})
	}
	s.mu.Unlock()

	if done != nil {
		done(err)
	}
}

func (s *Stack) ReportOutgoingCallStartedConnecting(token uuid.UUID) {
	s.record(Report{Kind: ReportStartedConnecting, Token: token})
}

func (s *Stack) ReportOutgoingCallConnected(token uuid.UUID) {
	s.record(Report{Kind: ReportConnected, Token: token})
}

func (s *Stack) ReportCallUpdated(token uuid.UUID, update CallUpdate) {
	s.record(Report{Kind: ReportUpdated, Token: token, Update: update})
}

// ReportCallEnded forgets the call and deactivates audio when it was the last.
func (s *Stack) ReportCallEnded(token uuid.UUID, reason EndReason) {
	s.record(Report{Kind: ReportEnded, Token: token, Reason: reason})
	s.forget(token)
}

// Invalidate makes every later request and report fail.
func (s *Stack) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = true
}

// ---- Controller ----

// Request accepts action and performs it on the delegate. done runs before
// the action is performed.
func (s *Stack) Request(action Action, done func(error)) {
	s.mu.Lock()
	var err error
	switch {
	case s.invalidated:
		err = ErrStackInvalidated
	case s.delegate == nil:
		err = ErrStackInvalidated
	case action.Kind() == ActionStart:
		if hasKey(s.calls, action.CallToken()) {
			err = ErrCallExists
		} else {
			s.calls[action.CallToken()] = false
		}
	case !hasKey(s.calls, action.CallToken()):
		err = ErrUnknownCall
	}
	delegate := s.delegate
	s.mu.Unlock()

	if err != nil {
		s.logger.Printf("telephony: %s request for %s refused: %v", action.Kind(), action.CallToken(), err)
	}
	if done != nil {
		done(err)
	}
	if err != nil {
		return
	}

	token := action.CallToken()
	action.OnComplete(func(result ActionResult) {
		switch action.Kind() {
		case ActionStart:
			if result.Fulfilled {
				s.activateAudio()
			} else {
				s.forget(token)
			}
		case ActionAnswer:
			if result.Fulfilled {
				s.activateAudio()
			}
		case ActionEnd:
			s.forget(token)
		}
	})
	delegate.PerformAction(action)
}

// Answer simulates the user answering the call in the system UI.
func (s *Stack) Answer(token uuid.UUID, done func(error)) {
	s.Request(NewAnswerCallAction(token), done)
}

// End simulates the user ending or declining the call in the system UI.
func (s *Stack) End(token uuid.UUID, done func(error)) {
	s.Request(NewEndCallAction(token), done)
}

func (s *Stack) SetMuted(token uuid.UUID, muted bool, done func(error)) {
	s.Request(NewSetMutedCallAction(token, muted), done)
}

func (s *Stack) SetHeld(token uuid.UUID, onHold bool, done func(error)) {
	s.Request(NewSetHeldCallAction(token, onHold), done)
}

func (s *Stack) PlayDTMF(token uuid.UUID, digits string, done func(error)) {
	s.Request(NewPlayDTMFCallAction(token, digits), done)
}

// Reset drops all calls and tells the delegate the stack was reset.
func (s *Stack) Reset() {
	s.mu.Lock()
	delegate := s.delegate
	s.mu.Unlock()

	if delegate != nil {
		delegate.ProviderDidReset()
	}

	s.mu.Lock()
	s.calls = make(map[uuid.UUID]bool)
	s.mu.Unlock()
	s.deactivateAudio()
}

func (s *Stack) forget(token uuid.UUID) {
	s.mu.Lock()
	delete(s.calls, token)
	empty := len(s.calls) == 0
	s.mu.Unlock()

	if empty {
		s.deactivateAudio()
	}
}

func (s *Stack) activateAudio() {
	s.mu.Lock()
	if s.audioActive {
		s.mu.Unlock()
		return
	}
	s.audioActive = true
	delegate := s.delegate
	s.mu.Unlock()

	if delegate != nil {
		delegate.DidActivateAudio()
	}
}

func (s *Stack) deactivateAudio() {
	s.mu.Lock()
	if !s.audioActive {
		s.mu.Unlock()
		return
	}
	s.audioActive = false
	delegate := s.delegate
	s.mu.Unlock()

	if delegate != nil {
		delegate.DidDeactivateAudio()
	}
}

func hasKey(calls map[uuid.UUID]bool, token uuid.UUID) bool {
	_, ok := calls[token]
	return ok
}
