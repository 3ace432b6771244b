/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"sync"
	"testing"
	"time"

	"github.com/automat-berlin/afone/phonesdk"
)

// fakeAdapter records every invocation and completes synchronously with the
// configured errors.
type fakeAdapter struct {
	mu    sync.Mutex
	calls []string

	orchestrator *Orchestrator

	answerErr error
	hangupErr error
	holdErr   error
	unholdErr error
	muteErr   error
	rejectErr error
	initErr   error
	createErr error

	rejectCodes []int
	digits      []rune
	reloaded    []Settings
	pushes      [][]byte

	audioCodecs []Codec
	video       bool
	needsCodecs bool
}

func (f *fakeAdapter) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeAdapter) invoked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAdapter) InitAdapter(_ Credentials, done func(error)) {
	f.record("init")
	done(f.initErr)
}

func (f *fakeAdapter) Reload(settings Settings) {
	f.record("reload")
	f.mu.Lock()
	f.reloaded = append(f.reloaded, settings)
	f.mu.Unlock()
}

func (f *fakeAdapter) Logout(done func()) {
	f.record("logout")
	if done != nil {
		done()
	}
}

func (f *fakeAdapter) CancelLogin()         { f.record("cancel") }
func (f *fakeAdapter) DidEnterBackground()  { f.record("background") }
func (f *fakeAdapter) WillEnterForeground() { f.record("foreground") }

func (f *fakeAdapter) AnswerCall(_ int, _ bool, done func(error)) {
	f.record("answer")
	done(f.answerErr)
}

func (f *fakeAdapter) HangUp(_ int, done func(error)) {
	f.record("hangup")
	done(f.hangupErr)
}

func (f *fakeAdapter) Hold(_ int, done func(error)) {
	f.record("hold")
	done(f.holdErr)
}

func (f *fakeAdapter) Unhold(_ int, done func(error)) {
	f.record("unhold")
	done(f.unholdErr)
}

func (f *fakeAdapter) Mute(_ int, _ bool, done func(error)) {
	f.record("mute")
	done(f.muteErr)
}

func (f *fakeAdapter) RejectCall(_ int, code int, done func(error)) {
	f.record("reject")
	f.mu.Lock()
	f.rejectCodes = append(f.rejectCodes, code)
	f.mu.Unlock()
	done(f.rejectErr)
}

func (f *fakeAdapter) SendDTMF(_ int, digit rune) {
	f.record("dtmf")
	f.mu.Lock()
	f.digits = append(f.digits, digit)
	f.mu.Unlock()
}

func (f *fakeAdapter) CreateCall(to string, _ bool, done func(*Call, error)) {
	f.record("create")
	if f.createErr != nil {
		done(nil, f.createErr)
		return
	}
	call := NewCall(f.orchestrator)
	call.SetCallee(to)
	call.SetSession(1)
	call.SetState(CallStateInitialized)
	done(call, nil)
}

func (f *fakeAdapter) HandlePushPayload(payload []byte) {
	f.record("push")
	f.pushes = append(f.pushes, payload)
}

func (f *fakeAdapter) StartAudio() { f.record("startAudio") }
func (f *fakeAdapter) StopAudio()  { f.record("stopAudio") }

func (f *fakeAdapter) AudioCodecs() []Codec      { return f.audioCodecs }
func (f *fakeAdapter) VideoCodecs() []Codec      { return nil }
func (f *fakeAdapter) SRTPOptions() []SRTPOption { return nil }
func (f *fakeAdapter) SupportsVideo() bool       { return f.video }
func (f *fakeAdapter) NeedsCodecs() bool         { return f.needsCodecs }
func (f *fakeAdapter) LocalVideoView() VideoView  { return nil }
func (f *fakeAdapter) RemoteVideoView() VideoView { return nil }

// newTestOrchestrator returns an orchestrator bound to a fresh fakeAdapter
// and driven by a manual clock.
func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeAdapter, *ManualClock) {
	t.Helper()
	clock := NewManualClock(time.Time{})
	o := NewOrchestrator(&Config{Logger: phonesdk.NopLogger{}, Clock: clock})
	adapter := &fakeAdapter{orchestrator: o}
	o.SetAdapter(adapter)
	return o, adapter, clock
}

// newSessionCall returns a call with a valid session handle.
func newSessionCall(o *Orchestrator) *Call {
	call := NewCall(o)
	call.SetSession(7)
	return call
}

type recordingObserver struct {
	mu        sync.Mutex
	states    []CallState
	sending   []bool
	receiving []bool
}

func (r *recordingObserver) CallStateChanged(state CallState, _ *Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingObserver) CallSendingVideoChanged(_ *Call, sending bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sending = append(r.sending, sending)
}

func (r *recordingObserver) CallReceivingVideoChanged(_ *Call, receiving bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receiving = append(r.receiving, receiving)
}

func (r *recordingObserver) seen() []CallState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CallState(nil), r.states...)
}
