/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"sync"

	"github.com/automat-berlin/afone/phonesdk"
)

// Orchestrator is the mediator between calls, the bound SignalingAdapter and
// everything interested in call events. It holds no call data itself.
//
// Call-control verbs are forwarded to the adapter and its completion is
// relayed unmodified. When no adapter is bound the verbs are dropped and the
// completion is never invoked; callers must not block waiting for it.
type Orchestrator struct {
	mu sync.RWMutex

	config   *Config
	adapter  SignalingAdapter
	settings Settings

	observers *ObserverSet[IncomingCallObserver]
	outgoing  *ObserverSet[OutgoingCallObserver]
}

// NewOrchestrator creates a new Orchestrator with no adapter bound
func NewOrchestrator(config *Config) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = phonesdk.DefaultLogger()
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	if config.RejectCode == 0 {
		config.RejectCode = BusyCode
	}

	return &Orchestrator{
		config:    config,
		observers: NewObserverSet[IncomingCallObserver](),
		outgoing:  NewObserverSet[OutgoingCallObserver](),
	}
}

// SetAdapter binds the signaling adapter. Pass nil to unbind.
func (o *Orchestrator) SetAdapter(adapter SignalingAdapter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.adapter = adapter
}

// Adapter returns the bound adapter
func (o *Orchestrator) Adapter() (SignalingAdapter, bool) {
	return o.boundAdapter()
}

// Logger returns the logger shared with the calls this orchestrator creates.
func (o *Orchestrator) Logger() phonesdk.Logger {
	return o.config.Logger
}

func (o *Orchestrator) boundAdapter() (SignalingAdapter, bool) {
	if o == nil {
		return nil, false
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.adapter, o.adapter != nil
}

// ---- Observers ----

// RegisterObserver adds an observer for incoming, answered and missed calls.
// Observers that also implement OutgoingCallObserver are told about calls
// created through CreateCall.
func (o *Orchestrator) RegisterObserver(observer IncomingCallObserver) {
	o.observers.Add(observer)
	if oo, ok := observer.(OutgoingCallObserver); ok {
		o.outgoing.Add(oo)
	}
}

// UnregisterObserver removes an observer
func (o *Orchestrator) UnregisterObserver(observer IncomingCallObserver) {
	o.observers.Remove(observer)
	if oo, ok := observer.(OutgoingCallObserver); ok {
		o.outgoing.Remove(oo)
	}
}

// GotIncomingCall is called by the adapter when a call arrives.
func (o *Orchestrator) GotIncomingCall(call *Call) {
	o.observers.Notify(func(obs IncomingCallObserver) {
		obs.GotIncomingCall(call)
	})
}

// DidAnswerCall is called by the adapter when an incoming call got connected.
func (o *Orchestrator) DidAnswerCall(call *Call) {
	o.observers.Notify(func(obs IncomingCallObserver) {
		obs.DidAnswerCall(call)
	})
}

// GotMissedCall is called by the adapter when an incoming call ended unanswered.
func (o *Orchestrator) GotMissedCall(call *Call) {
	o.observers.Notify(func(obs IncomingCallObserver) {
		obs.GotMissedCall(call)
	})
}

// ---- Account lifecycle ----

// InitAdapter logs in with credentials. Once the adapter reports success the
// last known settings are pushed to it before done runs, since adapters reset
// their codec state on every initialization.
func (o *Orchestrator) InitAdapter(credentials Credentials, done func(error)) {
	adapter, ok := o.boundAdapter()
	if !ok {
		o.config.Logger.Printf("orchestrator: init dropped, %v", ErrAdapterAbsent)
		return
	}
	adapter.InitAdapter(credentials, func(err error) {
		if err == nil {
			adapter.Reload(o.Settings())
		}
		if done != nil {
			done(err)
		}
	})
}

// Reload stores settings and pushes them to the bound adapter.
func (o *Orchestrator) Reload(settings Settings) {
	o.mu.Lock()
	o.settings = settings.Clone()
	adapter := o.adapter
	o.mu.Unlock()

	if adapter != nil {
		adapter.Reload(settings.Clone())
	}
}

// Settings returns a copy of the last known settings.
func (o *Orchestrator) Settings() Settings {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.settings.Clone()
}

func (o *Orchestrator) Logout(done func()) {
	if adapter, ok := o.boundAdapter(); ok {
		adapter.Logout(done)
	}
}

// CancelLogin aborts an in-flight InitAdapter.
func (o *Orchestrator) CancelLogin() {
	if adapter, ok := o.boundAdapter(); ok {
		adapter.CancelLogin()
	}
}

func (o *Orchestrator) DidEnterBackground() {
	if adapter, ok := o.boundAdapter(); ok {
		adapter.DidEnterBackground()
	}
}

func (o *Orchestrator) WillEnterForeground() {
	if adapter, ok := o.boundAdapter(); ok {
		adapter.WillEnterForeground()
	}
}

// HandlePushPayload hands a push payload to the adapter if it accepts pushes.
func (o *Orchestrator) HandlePushPayload(payload []byte) {
	adapter, ok := o.boundAdapter()
	if !ok {
		return
	}
	if handler, ok := adapter.(PushHandler); ok {
		handler.HandlePushPayload(payload)
	}
}

// ---- Call control ----

func (o *Orchestrator) AnswerCall(session int, video bool, done func(error)) {
	if adapter, ok := o.boundAdapter(); ok {
		adapter.AnswerCall(session, video, done)
	}
}

func (o *Orchestrator) HangUp(session int, done func(error)) {
	if adapter, ok := o.boundAdapter(); ok {
		adapter.HangUp(session, done)
	}
}

func (o *Orchestrator) Hold(session int, done func(error)) {
	if adapter, ok := o.boundAdapter(); ok {
		adapter.Hold(session, done)
	}
}

func (o *Orchestrator) Unhold(session int, done func(error)) {
	if adapter, ok := o.boundAdapter(); ok {
		adapter.Unhold(session, done)
	}
}

func (o *Orchestrator) Mute(session int, mute bool, done func(error)) {
	if adapter, ok := o.boundAdapter(); ok {
		adapter.Mute(session, mute, done)
	}
}

func (o *Orchestrator) RejectCall(session int, code int, done func(error)) {
	if adapter, ok := o.boundAdapter(); ok {
		adapter.RejectCall(session, code, done)
	}
}

func (o *Orchestrator) SendDTMF(session int, digit rune) {
	if adapter, ok := o.boundAdapter(); ok {
		adapter.SendDTMF(session, digit)
	}
}

// CreateCall asks the adapter to place an outgoing call. Without an adapter
// done receives (nil, ErrAdapterAbsent) and no Call is constructed.
func (o *Orchestrator) CreateCall(to string, video bool, done func(*Call, error)) {
	adapter, ok := o.boundAdapter()
	if !ok {
		o.config.Logger.Printf("orchestrator: create call to %s dropped, %v", to, ErrAdapterAbsent)
		if done != nil {
			done(nil, ErrAdapterAbsent)
		}
		return
	}
	adapter.CreateCall(to, video, func(call *Call, err error) {
		if err == nil && call != nil {
			o.outgoing.Notify(func(obs OutgoingCallObserver) {
				obs.DidCreateOutgoingCall(call)
			})
		}
		if done != nil {
			done(call, err)
		}
	})
}

// PerformStartCall is the start-call callback used by the telephony bridge.
// done receives nil when the call could not be created.
func (o *Orchestrator) PerformStartCall(to string, video bool, done func(*Call)) {
	o.CreateCall(to, video, func(call *Call, err error) {
		if err != nil {
			o.config.Logger.Printf("orchestrator: start call to %s failed: %v", to, err)
			call = nil
		}
		if done != nil {
			done(call)
		}
	})
}

// StartAudio starts the local audio device once the system activated audio.
func (o *Orchestrator) StartAudio() {
	if adapter, ok := o.boundAdapter(); ok {
		adapter.StartAudio()
	}
}

func (o *Orchestrator) StopAudio() {
	if adapter, ok := o.boundAdapter(); ok {
		adapter.StopAudio()
	}
}

// ---- Video ----

func (o *Orchestrator) videoController() (VideoController, bool) {
	adapter, ok := o.boundAdapter()
	if !ok {
		return nil, false
	}
	vc, ok := adapter.(VideoController)
	return vc, ok
}

func (o *Orchestrator) EnableLocalVideo(enable bool, done func(bool)) {
	if _, bound := o.boundAdapter(); !bound {
		return
	}
	vc, ok := o.videoController()
	if !ok {
		if done != nil {
			done(false)
		}
		return
	}
	vc.EnableLocalVideo(enable, done)
}

func (o *Orchestrator) EnableRemoteVideo(enable bool, done func(bool)) {
	if _, bound := o.boundAdapter(); !bound {
		return
	}
	vc, ok := o.videoController()
	if !ok {
		if done != nil {
			done(false)
		}
		return
	}
	vc.EnableRemoteVideo(enable, done)
}

func (o *Orchestrator) ToggleCameraPosition(done func(error)) {
	if _, bound := o.boundAdapter(); !bound {
		return
	}
	vc, ok := o.videoController()
	if !ok {
		complete(done, ErrVideoUnsupported)
		return
	}
	vc.ToggleCameraPosition(done)
}

// UpdateCall adds or removes video on a running call.
func (o *Orchestrator) UpdateCall(session int, video bool, done func(error)) {
	if _, bound := o.boundAdapter(); !bound {
		return
	}
	vc, ok := o.videoController()
	if !ok {
		complete(done, ErrVideoUnsupported)
		return
	}
	vc.UpdateCall(session, video, done)
}

// ---- Capabilities ----
// Each read returns ok == false when no adapter is bound.

func (o *Orchestrator) AudioCodecs() ([]Codec, bool) {
	adapter, ok := o.boundAdapter()
	if !ok {
		return nil, false
	}
	return adapter.AudioCodecs(), true
}

func (o *Orchestrator) VideoCodecs() ([]Codec, bool) {
	adapter, ok := o.boundAdapter()
	if !ok {
		return nil, false
	}
	return adapter.VideoCodecs(), true
}

func (o *Orchestrator) SRTPOptions() ([]SRTPOption, bool) {
	adapter, ok := o.boundAdapter()
	if !ok {
		return nil, false
	}
	return adapter.SRTPOptions(), true
}

func (o *Orchestrator) SupportsVideo() (bool, bool) {
	adapter, ok := o.boundAdapter()
	if !ok {
		return false, false
	}
	return adapter.SupportsVideo(), true
}

func (o *Orchestrator) NeedsCodecs() (bool, bool) {
	adapter, ok := o.boundAdapter()
	if !ok {
		return false, false
	}
	return adapter.NeedsCodecs(), true
}

func (o *Orchestrator) LocalVideoView() (VideoView, bool) {
	adapter, ok := o.boundAdapter()
	if !ok {
		return nil, false
	}
	view := adapter.LocalVideoView()
	return view, view != nil
}

func (o *Orchestrator) RemoteVideoView() (VideoView, bool) {
	adapter, ok := o.boundAdapter()
	if !ok {
		return nil, false
	}
	view := adapter.RemoteVideoView()
	return view, view != nil
}
