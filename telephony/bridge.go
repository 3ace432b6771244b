/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package telephony

import (
	"fmt"
	"sync"
	"time"

	"github.com/automat-berlin/afone/audio"
	"github.com/automat-berlin/afone/calling"
	"github.com/automat-berlin/afone/phonesdk"
	"github.com/google/uuid"
)

// StartCallHandler creates the outgoing call for a start action. done
// receives nil when no call could be created.
type StartCallHandler func(to string, video bool, done func(*calling.Call))

// Config holds configuration for the Bridge
type Config struct {
	// ActionTimeout fails a native action whose completion never arrived,
	// e.g. because no signaling adapter was bound (default: 30s).
	ActionTimeout time.Duration

	// Clock arms the action timeouts. If nil, calling.SystemClock is used.
	Clock calling.Clock

	// Logger for bridge diagnostics. If nil, the phonesdk default logger is used.
	Logger phonesdk.Logger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ActionTimeout: 30 * time.Second,
		Clock:         calling.SystemClock{},
	}
}

// Dependencies are the collaborators of a Bridge. Provider, Controller and
// Orchestrator are required.
type Dependencies struct {
	Orchestrator *calling.Orchestrator
	Provider     Provider
	Controller   Controller
	Router       *audio.Router
	Permissions  Permissions
	Notifier     Notifier
}

// Bridge translates native telephony actions into calls on the calling core
// and reports call changes back to the native stack. It owns the single
// active call.
type Bridge struct {
	mu sync.RWMutex

	config      *Config
	logger      phonesdk.Logger
	clock       calling.Clock
	orch        *calling.Orchestrator
	provider    Provider
	controller  Controller
	router      *audio.Router
	permissions Permissions
	notifier    Notifier
	startCall   StartCallHandler

	activeCall     *calling.Call
	connectedToken uuid.UUID

	audioObservers *calling.ObserverSet[AudioStateObserver]
}

// NewBridge creates a Bridge and registers it with the orchestrator for
// incoming call events.
func NewBridge(deps Dependencies, config *Config) (*Bridge, error) {
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.ActionTimeout <= 0 {
		config.ActionTimeout = DefaultConfig().ActionTimeout
	}
	if config.Clock == nil {
		config.Clock = calling.SystemClock{}
	}

	permissions := deps.Permissions
	if permissions == nil {
		permissions = StaticPermissions{Camera: true, Microphone: true}
	}
	router := deps.Router
	if router == nil {
		router = audio.NewRouter(nil, &audio.Config{Logger: config.Logger})
	}

	b := &Bridge{
		config:         config,
		logger:         phonesdk.OrDefault(config.Logger),
		clock:          config.Clock,
		orch:           deps.Orchestrator,
		provider:       deps.Provider,
		controller:     deps.Controller,
		router:         router,
		permissions:    permissions,
		notifier:       deps.Notifier,
		startCall:      deps.Orchestrator.PerformStartCall,
		audioObservers: calling.NewObserverSet[AudioStateObserver](),
	}
	deps.Orchestrator.RegisterObserver(b)
	return b, nil
}

// SetStartCallHandler replaces the start-call callback.
func (b *Bridge) SetStartCallHandler(handler StartCallHandler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startCall = handler
}

// AddAudioStateObserver registers an observer for mute/hold changes.
func (b *Bridge) AddAudioStateObserver(observer AudioStateObserver) {
	b.audioObservers.Add(observer)
}

// RemoveAudioStateObserver unregisters an audio-state observer.
func (b *Bridge) RemoveAudioStateObserver(observer AudioStateObserver) {
	b.audioObservers.Remove(observer)
}

// ActiveCall returns the active call, or nil
func (b *Bridge) ActiveCall() *calling.Call {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.activeCall
}

func (b *Bridge) setActiveCall(call *calling.Call) {
	b.mu.Lock()
	previous := b.activeCall
	b.activeCall = call
	b.connectedToken = uuid.Nil
	b.mu.Unlock()

	if previous != nil && previous != call {
		previous.RemoveObserver(b)
	}
	call.AddObserver(b)
}

// clearActiveCall drops call if it is still the active one.
func (b *Bridge) clearActiveCall(call *calling.Call) {
	b.mu.Lock()
	if b.activeCall != call {
		b.mu.Unlock()
		return
	}
	b.activeCall = nil
	b.connectedToken = uuid.Nil
	b.mu.Unlock()

	call.RemoveObserver(b)
}

// matchingCall returns the active call if its token equals token.
func (b *Bridge) matchingCall(token uuid.UUID) (*calling.Call, bool) {
	b.mu.RLock()
	call := b.activeCall
	b.mu.RUnlock()
	if call == nil || call.GetToken() != token {
		return nil, false
	}
	return call, true
}

func resolve(action Action, err error) {
	if err != nil {
		action.Fail(err)
		return
	}
	action.Fulfill()
}

// ---- ProviderDelegate ----

// ProviderDidReset is an abrupt reset of the native stack. The active call
// is ended best-effort.
func (b *Bridge) ProviderDidReset() {
	b.logger.Printf("telephony: provider did reset")
	b.RequestEndCall(nil)
}

// PerformAction dispatches a native action to its handler. Every action is
// completed exactly once: a handler that never completes is failed after
// Config.ActionTimeout and a handler that panics fails the action.
func (b *Bridge) PerformAction(action Action) {
	timer := b.clock.AfterFunc(b.config.ActionTimeout, func() {
		if action.Fail(ErrActionTimeout) {
			b.logger.Printf("telephony: %s action for %s timed out", action.Kind(), action.CallToken())
		}
	})
	action.OnComplete(func(result ActionResult) {
		timer.Stop()
		if result.Err != nil {
			b.logger.Printf("telephony: %s action for %s failed: %v", action.Kind(), action.CallToken(), result.Err)
		}
	})

	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("telephony: %s action panicked: %v", action.Kind(), r)
			action.Fail(fmt.Errorf("%w: %v", ErrInternal, r))
		}
	}()

	switch a := action.(type) {
	case *StartCallAction:
		b.performStartCall(a)
	case *AnswerCallAction:
		b.performAnswerCall(a)
	case *EndCallAction:
		b.performEndCall(a)
	case *SetMutedCallAction:
		b.performSetMuted(a)
	case *SetHeldCallAction:
		b.performSetHeld(a)
	case *PlayDTMFCallAction:
		b.performPlayDTMF(a)
	default:
		action.Fail(fmt.Errorf("%w: %s", ErrUnsupportedAction, action.Kind()))
	}
}

func (b *Bridge) performStartCall(a *StartCallAction) {
	b.mu.RLock()
	start := b.startCall
	b.mu.RUnlock()

	start(a.Handle, a.Video, func(call *calling.Call) {
		if call == nil {
			b.router.Restore()
			a.Fail(ErrStartCallFailed)
			return
		}
		call.SetToken(a.CallToken())
		b.setActiveCall(call)
		a.Fulfill()
	})
}

func (b *Bridge) performAnswerCall(a *AnswerCallAction) {
	call, ok := b.matchingCall(a.CallToken())
	if !ok {
		a.Fail(ErrTokenMismatch)
		return
	}
	call.Accept(func(err error) {
		resolve(a, err)
	})
}

func (b *Bridge) performEndCall(a *EndCallAction) {
	call, ok := b.matchingCall(a.CallToken())
	if !ok {
		a.Fail(ErrTokenMismatch)
		return
	}
	a.OnComplete(func(ActionResult) {
		b.clearActiveCall(call)
	})

	switch state := call.GetState(); {
	case state == calling.CallStateTalking:
		call.Hangup(func(err error) { resolve(a, err) })
	case state == calling.CallStateTerminated && call.IsHungUpRemotely():
		b.provider.ReportCallEnded(call.GetToken(), EndReasonRemoteEnded)
		a.Fulfill()
	default:
		call.Reject(func(err error) { resolve(a, err) })
	}
}

func (b *Bridge) performSetMuted(a *SetMutedCallAction) {
	call, ok := b.matchingCall(a.CallToken())
	if !ok {
		a.Fail(ErrTokenMismatch)
		return
	}
	current := call.IsMuted()
	// A request for the state the call already has is fulfilled without
	// reaching the adapter; otherwise the current flag is inverted.
	if a.Muted == current {
		a.Fulfill()
		return
	}
	call.Mute(!current, func(err error) {
		if err == nil {
			b.audioObservers.Notify(func(o AudioStateObserver) {
				o.MuteChanged(call, !current)
			})
		}
		resolve(a, err)
	})
}

func (b *Bridge) performSetHeld(a *SetHeldCallAction) {
	call, ok := b.matchingCall(a.CallToken())
	if !ok {
		a.Fail(ErrTokenMismatch)
		return
	}
	current := call.IsOnHold()
	if a.OnHold == current {
		a.Fulfill()
		return
	}
	done := func(err error) {
		if err == nil {
			b.audioObservers.Notify(func(o AudioStateObserver) {
				o.HoldChanged(call, !current)
			})
		}
		resolve(a, err)
	}
	if current {
		call.Unhold(done)
	} else {
		call.Hold(done)
	}
}

func (b *Bridge) performPlayDTMF(a *PlayDTMFCallAction) {
	call, ok := b.matchingCall(a.CallToken())
	if !ok {
		a.Fail(ErrTokenMismatch)
		return
	}
	for _, digit := range a.Digits {
		call.SendDTMF(digit)
	}
	a.Fulfill()
}

// DidActivateAudio starts the local audio device.
func (b *Bridge) DidActivateAudio() {
	b.orch.StartAudio()
}

// DidDeactivateAudio stops the local audio device and puts the session back
// into the idle profile.
func (b *Bridge) DidDeactivateAudio() {
	b.orch.StopAudio()
	b.router.Restore()
}

// ---- calling.IncomingCallObserver ----

// GotIncomingCall reports a new call to the native stack. When neither camera
// nor microphone can be used the call is rejected without ringing and a local
// notification is shown instead.
func (b *Bridge) GotIncomingCall(call *calling.Call) {
	if !b.permissions.CameraGrantable() && !b.permissions.MicrophoneGrantable() {
		b.logger.Printf("telephony: rejecting call %s, no capture permissions", call.GetToken())
		call.MarkMissed()
		call.Reject(func(err error) {
			if err != nil {
				b.logger.Printf("telephony: reject of %s failed: %v", call.GetToken(), err)
			}
		})
		if b.notifier != nil {
			b.notifier.NotifyRejectedCall(call)
		}
		return
	}

	if active := b.ActiveCall(); active != nil && active != call && active.GetState() != calling.CallStateTerminated {
		b.logger.Printf("telephony: rejecting call %s, call %s is active", call.GetToken(), active.GetToken())
		call.Reject(nil)
		return
	}

	b.setActiveCall(call)
	b.router.Apply(audio.ProfileVoice)

	caller := call.GetCaller()
	name := call.GetDisplayName()
	if name == "" {
		name = caller
	}
	update := CallUpdate{
		RemoteHandle:        Handle{Type: HandleGeneric, Value: caller},
		LocalizedCallerName: name,
		SupportsDTMF:        true,
		SupportsHolding:     true,
		HasVideo:            call.IsReceivingVideo(),
	}
	token := call.GetToken()
	b.provider.ReportNewIncomingCall(token, update, func(err error) {
		if err == nil {
			return
		}
		b.logger.Printf("telephony: native stack refused call %s: %v", token, err)
		b.router.Restore()
		b.provider.ReportCallEnded(token, EndReasonUnanswered)
		b.clearActiveCall(call)
	})
}

func (b *Bridge) DidAnswerCall(call *calling.Call) {
	b.logger.Printf("telephony: call %s answered", call.GetToken())
}

func (b *Bridge) GotMissedCall(call *calling.Call) {
	b.logger.Printf("telephony: missed call from %s", call.GetCaller())
}

// ---- calling.CallObserver ----

// CallStateChanged reports state changes of the active call. Local
// terminations are torn down through the end action, so only remote ones
// are handled here.
func (b *Bridge) CallStateChanged(state calling.CallState, call *calling.Call) {
	switch state {
	case calling.CallStateTerminated:
		if !call.IsHungUpRemotely() {
			return
		}
		token := call.GetToken()
		b.RequestEndCall(func(err error) {
			if err == nil {
				return
			}
			b.logger.Printf("telephony: end request for %s failed: %v", token, err)
			b.provider.ReportCallEnded(token, EndReasonRemoteEnded)
			b.clearActiveCall(call)
		})
	case calling.CallStateTalking:
		if call.IsIncoming() {
			return
		}
		token := call.GetToken()
		b.mu.Lock()
		reported := b.connectedToken == token
		b.connectedToken = token
		b.mu.Unlock()
		if !reported {
			b.provider.ReportOutgoingCallConnected(token)
		}
	}
}

func (b *Bridge) CallSendingVideoChanged(*calling.Call, bool) {}

// CallReceivingVideoChanged tells the native stack whether video is shown.
func (b *Bridge) CallReceivingVideoChanged(call *calling.Call, receiving bool) {
	b.provider.ReportCallUpdated(call.GetToken(), CallUpdate{
		RemoteHandle:        Handle{Type: HandleGeneric, Value: call.GetCallee()},
		LocalizedCallerName: call.GetCallee(),
		SupportsDTMF:        true,
		SupportsHolding:     true,
		HasVideo:            receiving,
	})
}

// ---- Requests ----

// RequestCall asks the native stack to start an outgoing call to handle.
func (b *Bridge) RequestCall(handle string, video bool, done func(error)) {
	token := uuid.New()
	b.router.Apply(audio.ProfileVoice)
	b.controller.Request(NewStartCallAction(token, handle, video), func(err error) {
		if err != nil {
			b.logger.Printf("telephony: start call request failed: %v", err)
			b.router.Restore()
		} else {
			b.provider.ReportOutgoingCallStartedConnecting(token)
			b.provider.ReportCallUpdated(token, CallUpdate{
				RemoteHandle:        Handle{Type: HandleGeneric, Value: handle},
				LocalizedCallerName: handle,
				SupportsDTMF:        true,
				SupportsHolding:     true,
				HasVideo:            video,
			})
		}
		if done != nil {
			done(err)
		}
	})
}

// RequestEndCall asks the native stack to end the active call.
func (b *Bridge) RequestEndCall(done func(error)) {
	call := b.ActiveCall()
	if call == nil {
		if done != nil {
			done(ErrNoActiveCall)
		}
		return
	}
	b.controller.Request(NewEndCallAction(call.GetToken()), done)
}

// TriggerMute asks the native stack to toggle mute on the active call.
func (b *Bridge) TriggerMute(done func(error)) {
	call := b.ActiveCall()
	if call == nil {
		if done != nil {
			done(newBridgeError(CodeMuteUnavailable, ErrNoActiveCall))
		}
		return
	}
	b.controller.Request(NewSetMutedCallAction(call.GetToken(), !call.IsMuted()), done)
}

// TriggerHold asks the native stack to toggle hold on the active call.
func (b *Bridge) TriggerHold(done func(error)) {
	call := b.ActiveCall()
	if call == nil {
		if done != nil {
			done(newBridgeError(CodeHoldUnavailable, ErrNoActiveCall))
		}
		return
	}
	b.controller.Request(NewSetHeldCallAction(call.GetToken(), !call.IsOnHold()), done)
}

// TriggerDTMF asks the native stack to play digits on the active call.
func (b *Bridge) TriggerDTMF(digits string, done func(error)) {
	call := b.ActiveCall()
	if call == nil {
		if done != nil {
			done(ErrNoActiveCall)
		}
		return
	}
	b.controller.Request(NewPlayDTMFCallAction(call.GetToken(), digits), done)
}

// TriggerAnswer asks the native stack to answer the active call.
func (b *Bridge) TriggerAnswer(done func(error)) {
	call := b.ActiveCall()
	if call == nil {
		if done != nil {
			done(ErrNoActiveCall)
		}
		return
	}
	b.controller.Request(NewAnswerCallAction(call.GetToken()), done)
}
