/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"sync"
	"time"

	"github.com/automat-berlin/afone/phonesdk"
	"github.com/google/uuid"
)

const (
	// NoSession is the session handle of a call the adapter has not assigned yet.
	NoSession = -1

	// UnknownParty is used for caller and callee until the adapter knows better.
	UnknownParty = "Unknown"
)

// Call represents one telephony session. All attributes are mutated through
// Call methods so every change reaches the registered observers.
type Call struct {
	mu sync.RWMutex

	orchestrator *Orchestrator
	clock        Clock
	logger       phonesdk.Logger
	rejectCode   int

	// Identity
	sessionID int
	token     uuid.UUID

	// Parties
	caller      string
	callee      string
	displayName string

	// Media flags
	existsAudio    bool
	sendingVideo   bool
	receivingVideo bool

	// Control flags
	muted          bool
	onHold         bool
	onSpeaker      bool
	incoming       bool
	missed         bool
	hungUpRemotely bool

	// Timing
	duration       int
	durationString string
	ticker         Timer

	state CallState

	observers         *ObserverSet[CallObserver]
	durationObservers *ObserverSet[DurationObserver]
}

// NewCall creates a call bound to the orchestrator. Adapters create calls
// through this function for both directions.
func NewCall(o *Orchestrator) *Call {
	config := DefaultConfig()
	if o != nil {
		config = o.config
	}
	return &Call{
		orchestrator:      o,
		clock:             config.Clock,
		logger:            config.Logger,
		rejectCode:        config.RejectCode,
		sessionID:         NoSession,
		token:             uuid.New(),
		caller:            UnknownParty,
		callee:            UnknownParty,
		durationString:    FormatDuration(0),
		state:             CallStateUnknown,
		observers:         NewObserverSet[CallObserver](),
		durationObservers: NewObserverSet[DurationObserver](),
	}
}

// ---- Observers ----

// AddObserver registers a state observer. Observers that also implement
// VideoObserver receive video flag changes.
func (c *Call) AddObserver(observer CallObserver) {
	c.observers.Add(observer)
}

// RemoveObserver unregisters a state observer.
func (c *Call) RemoveObserver(observer CallObserver) {
	c.observers.Remove(observer)
}

// AddDurationObserver registers a duration observer.
func (c *Call) AddDurationObserver(observer DurationObserver) {
	c.durationObservers.Add(observer)
}

// RemoveDurationObserver unregisters a duration observer.
func (c *Call) RemoveDurationObserver(observer DurationObserver) {
	c.durationObservers.Remove(observer)
}

// ---- Getters ----

// GetSessionID returns the adapter session handle, or NoSession.
func (c *Call) GetSessionID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// HasSession reports whether a valid session handle is assigned.
func (c *Call) HasSession() bool {
	return c.GetSessionID() != NoSession
}

// GetToken returns the token used by the native telephony stack.
func (c *Call) GetToken() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the token with the one the native telephony stack
// assigned to an outgoing call. It must be called before the call is
// reported to the stack.
func (c *Call) SetToken(token uuid.UUID) {
	if token == uuid.Nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// GetState returns the current call state
func (c *Call) GetState() CallState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// GetCaller returns the caller identifier
func (c *Call) GetCaller() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caller
}

// GetCallee returns the callee identifier
func (c *Call) GetCallee() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.callee
}

// GetDisplayName returns the caller display name, if any
func (c *Call) GetDisplayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.displayName
}

// GetDuration returns the elapsed talking time in seconds
func (c *Call) GetDuration() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.duration
}

// GetDurationString returns the elapsed talking time as HH:MM:SS
func (c *Call) GetDurationString() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.durationString
}

func (c *Call) ExistsAudio() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.existsAudio
}

func (c *Call) IsSendingVideo() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sendingVideo
}

func (c *Call) IsReceivingVideo() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.receivingVideo
}

func (c *Call) IsMuted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.muted
}

func (c *Call) IsOnHold() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onHold
}

func (c *Call) IsOnSpeaker() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onSpeaker
}

func (c *Call) IsIncoming() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.incoming
}

func (c *Call) IsMissed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.missed
}

func (c *Call) IsHungUpRemotely() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hungUpRemotely
}

// SupportsVideo reads the capability of the currently bound adapter.
func (c *Call) SupportsVideo() bool {
	if c.orchestrator == nil {
		return false
	}
	supported, _ := c.orchestrator.SupportsVideo()
	return supported
}

// ---- Setters (adapter side) ----

// SetState moves the call to state. Assigning the current state, or any
// state once terminated, is a no-op. Observers are notified synchronously.
func (c *Call) SetState(state CallState) {
	c.mu.Lock()
	if c.state == state || c.state.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.state = state
	switch state {
	case CallStateTalking:
		if c.ticker == nil {
			c.ticker = c.clock.AfterFunc(time.Second, c.tick)
		}
	case CallStateTerminated:
		if c.ticker != nil {
			c.ticker.Stop()
			c.ticker = nil
		}
	}
	c.mu.Unlock()

	c.observers.Notify(func(o CallObserver) {
		o.CallStateChanged(state, c)
	})
}

func (c *Call) tick() {
	c.mu.Lock()
	if c.ticker == nil {
		c.mu.Unlock()
		return
	}
	c.duration++
	seconds := c.duration
	formatted := FormatDuration(seconds)
	c.durationString = formatted
	c.ticker = c.clock.AfterFunc(time.Second, c.tick)
	c.mu.Unlock()

	c.durationObservers.Notify(func(o DurationObserver) {
		o.DurationChanged(seconds, c)
		o.DurationStringChanged(formatted, c)
	})
}

// SetSession assigns the adapter session handle.
func (c *Call) SetSession(session int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = session
}

// SetCaller sets the caller identifier and optional display name.
func (c *Call) SetCaller(caller, displayName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != "" {
		c.caller = caller
	}
	c.displayName = displayName
}

// SetCallee sets the callee identifier.
func (c *Call) SetCallee(callee string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if callee != "" {
		c.callee = callee
	}
}

func (c *Call) SetExistsAudio(exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.existsAudio = exists
}

// SetSendingVideo updates the flag and notifies VideoObservers on change.
func (c *Call) SetSendingVideo(sending bool) {
	c.mu.Lock()
	changed := c.sendingVideo != sending
	c.sendingVideo = sending
	c.mu.Unlock()
	if !changed {
		return
	}
	c.observers.Notify(func(o CallObserver) {
		if vo, ok := o.(VideoObserver); ok {
			vo.CallSendingVideoChanged(c, sending)
		}
	})
}

// SetReceivingVideo updates the flag and notifies VideoObservers on change.
func (c *Call) SetReceivingVideo(receiving bool) {
	c.mu.Lock()
	changed := c.receivingVideo != receiving
	c.receivingVideo = receiving
	c.mu.Unlock()
	if !changed {
		return
	}
	c.observers.Notify(func(o CallObserver) {
		if vo, ok := o.(VideoObserver); ok {
			vo.CallReceivingVideoChanged(c, receiving)
		}
	})
}

func (c *Call) SetOnSpeaker(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSpeaker = on
}

// MarkIncoming flags the call as network-originated.
func (c *Call) MarkIncoming() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incoming = true
}

// MarkMissed flags the call as missed.
func (c *Call) MarkMissed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missed = true
}

// MarkHungUpRemotely records that the remote side ended the call. Adapters
// call it before moving the call to CallStateTerminated.
func (c *Call) MarkHungUpRemotely() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hungUpRemotely = true
}

// ---- Call actions ----

func (c *Call) session() (int, bool) {
	session := c.GetSessionID()
	return session, session != NoSession
}

func complete(done func(error), err error) {
	if done != nil {
		done(err)
	}
}

// Accept answers the call. On success the call moves to talking.
func (c *Call) Accept(done func(error)) {
	session, ok := c.session()
	if !ok {
		complete(done, ErrSessionMissing)
		return
	}
	c.orchestrator.AnswerCall(session, true, func(err error) {
		if err == nil {
			c.SetState(CallStateTalking)
		}
		complete(done, err)
	})
}

// Hangup ends the call. On success the call moves to terminated.
func (c *Call) Hangup(done func(error)) {
	session, ok := c.session()
	if !ok {
		complete(done, ErrSessionMissing)
		return
	}
	c.orchestrator.HangUp(session, func(err error) {
		if err == nil {
			c.SetState(CallStateTerminated)
		}
		complete(done, err)
	})
}

// Reject terminates the call locally right away and then asks the adapter
// to reject it with the busy code. A failed reject is reported to done but
// the call stays terminated.
func (c *Call) Reject(done func(error)) {
	session, ok := c.session()
	if !ok {
		complete(done, ErrSessionMissing)
		return
	}
	c.SetState(CallStateTerminated)
	c.orchestrator.RejectCall(session, c.rejectCode, func(err error) {
		if err != nil {
			c.logger.Printf("call %s: reject failed: %v", c.GetToken(), err)
		}
		complete(done, err)
	})
}

// Mute mutes or unmutes the microphone. The flag changes only on success.
func (c *Call) Mute(mute bool, done func(error)) {
	session, ok := c.session()
	if !ok {
		complete(done, ErrSessionMissing)
		return
	}
	c.orchestrator.Mute(session, mute, func(err error) {
		if err == nil {
			c.mu.Lock()
			c.muted = mute
			c.mu.Unlock()
		}
		complete(done, err)
	})
}

// Hold puts the call on hold. A failure leaves the call marked as not held.
func (c *Call) Hold(done func(error)) {
	session, ok := c.session()
	if !ok {
		complete(done, ErrSessionMissing)
		return
	}
	c.orchestrator.Hold(session, func(err error) {
		c.mu.Lock()
		c.onHold = err == nil
		c.mu.Unlock()
		complete(done, err)
	})
}

// Unhold resumes a held call. A failure leaves the call marked as held.
func (c *Call) Unhold(done func(error)) {
	session, ok := c.session()
	if !ok {
		complete(done, ErrSessionMissing)
		return
	}
	c.orchestrator.Unhold(session, func(err error) {
		c.mu.Lock()
		c.onHold = err != nil
		c.mu.Unlock()
		complete(done, err)
	})
}

// SendDTMF sends one DTMF digit. There is no completion.
func (c *Call) SendDTMF(digit rune) {
	c.orchestrator.SendDTMF(c.GetSessionID(), digit)
}

// ---- Video ----

// EnableLocalVideo starts or stops the local camera stream.
func (c *Call) EnableLocalVideo(enable bool, done func(bool)) {
	c.orchestrator.EnableLocalVideo(enable, done)
}

// EnableRemoteVideo starts or stops rendering of the remote stream.
func (c *Call) EnableRemoteVideo(enable bool, done func(bool)) {
	c.orchestrator.EnableRemoteVideo(enable, done)
}

// ToggleCameraPosition switches between front and back camera.
func (c *Call) ToggleCameraPosition(done func(error)) {
	c.orchestrator.ToggleCameraPosition(done)
}

// UpdateVideo renegotiates the call with or without video. On success the
// sending-video flag follows the request.
func (c *Call) UpdateVideo(video bool, done func(error)) {
	session, ok := c.session()
	if !ok {
		complete(done, ErrSessionMissing)
		return
	}
	c.orchestrator.UpdateCall(session, video, func(err error) {
		if err == nil {
			c.SetSendingVideo(video)
		}
		complete(done, err)
	})
}
