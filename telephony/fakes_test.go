/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package telephony

import (
	"sync"
	"testing"
	"time"

	"github.com/automat-berlin/afone/audio"
	"github.com/automat-berlin/afone/calling"
	"github.com/automat-berlin/afone/phonesdk"
)

// fakeAdapter completes every verb synchronously with the configured error.
// With stall set the completions are never invoked.
type fakeAdapter struct {
	mu    sync.Mutex
	calls []string

	orch  *calling.Orchestrator
	stall bool

	answerErr error
	hangupErr error
	holdErr   error
	muteErr   error
	rejectErr error
	createErr error

	digits []rune
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

func (f *fakeAdapter) count(name string) int {
	n := 0
	for _, c := range f.invoked() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeAdapter) finish(done func(error), err error) {
	if f.stall || done == nil {
		return
	}
	done(err)
}

func (f *fakeAdapter) InitAdapter(_ calling.Credentials, done func(error)) {
	f.record("init")
	f.finish(done, nil)
}
func (f *fakeAdapter) Reload(calling.Settings) { f.record("reload") }
func (f *fakeAdapter) Logout(done func()) {
	f.record("logout")
	if done != nil {
		done()
	}
}
func (f *fakeAdapter) CancelLogin()         {}
func (f *fakeAdapter) DidEnterBackground()  {}
func (f *fakeAdapter) WillEnterForeground() {}

func (f *fakeAdapter) AnswerCall(_ int, _ bool, done func(error)) {
	f.record("answer")
	f.finish(done, f.answerErr)
}

func (f *fakeAdapter) HangUp(_ int, done func(error)) {
	f.record("hangup")
	f.finish(done, f.hangupErr)
}

func (f *fakeAdapter) Hold(_ int, done func(error)) {
	f.record("hold")
	f.finish(done, f.holdErr)
}

func (f *fakeAdapter) Unhold(_ int, done func(error)) {
	f.record("unhold")
	f.finish(done, f.holdErr)
}

func (f *fakeAdapter) Mute(_ int, _ bool, done func(error)) {
	f.record("mute")
	f.finish(done, f.muteErr)
}

func (f *fakeAdapter) RejectCall(_ int, _ int, done func(error)) {
	f.record("reject")
	f.finish(done, f.rejectErr)
}

func (f *fakeAdapter) SendDTMF(_ int, digit rune) {
	f.record("dtmf")
	f.mu.Lock()
	f.digits = append(f.digits, digit)
	f.mu.Unlock()
}

func (f *fakeAdapter) CreateCall(to string, _ bool, done func(*calling.Call, error)) {
	f.record("create")
	if f.stall {
		return
	}
	if f.createErr != nil {
		done(nil, f.createErr)
		return
	}
	call := calling.NewCall(f.orch)
	call.SetCallee(to)
	call.SetSession(2)
	call.SetState(calling.CallStateDialing)
	done(call, nil)
}

func (f *fakeAdapter) StartAudio() { f.record("startAudio") }
func (f *fakeAdapter) StopAudio()  { f.record("stopAudio") }

func (f *fakeAdapter) AudioCodecs() []calling.Codec       { return nil }
func (f *fakeAdapter) VideoCodecs() []calling.Codec       { return nil }
func (f *fakeAdapter) SRTPOptions() []calling.SRTPOption  { return nil }
func (f *fakeAdapter) SupportsVideo() bool                { return false }
func (f *fakeAdapter) NeedsCodecs() bool                  { return false }
func (f *fakeAdapter) LocalVideoView() calling.VideoView  { return nil }
func (f *fakeAdapter) RemoteVideoView() calling.VideoView { return nil }

// incoming simulates the adapter receiving a call.
func (f *fakeAdapter) incoming(caller, displayName string) *calling.Call {
	call := calling.NewCall(f.orch)
	call.SetSession(1)
	call.MarkIncoming()
	call.SetCaller(caller, displayName)
	call.SetState(calling.CallStateRinging)
	f.orch.GotIncomingCall(call)
	return call
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []*calling.Call
}

func (n *recordingNotifier) NotifyRejectedCall(call *calling.Call) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, call)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type audioStateRecorder struct {
	muted []bool
	held  []bool
}

func (r *audioStateRecorder) MuteChanged(_ *calling.Call, muted bool)  { r.muted = append(r.muted, muted) }
func (r *audioStateRecorder) HoldChanged(_ *calling.Call, onHold bool) { r.held = append(r.held, onHold) }

type fixture struct {
	orch     *calling.Orchestrator
	adapter  *fakeAdapter
	stack    *Stack
	bridge   *Bridge
	session  *audio.MemorySession
	router   *audio.Router
	notifier *recordingNotifier
	clock    *calling.ManualClock
}

func newFixture(t *testing.T, permissions Permissions) *fixture {
	t.Helper()
	clock := calling.NewManualClock(time.Time{})
	orch := calling.NewOrchestrator(&calling.Config{Logger: phonesdk.NopLogger{}, Clock: clock})
	adapter := &fakeAdapter{orch: orch}
	orch.SetAdapter(adapter)

	session := &audio.MemorySession{}
	router := audio.NewRouter(session, &audio.Config{Logger: phonesdk.NopLogger{}})
	stack := NewStack(phonesdk.NopLogger{})
	notifier := &recordingNotifier{}

	bridge, err := NewBridge(Dependencies{
		Orchestrator: orch,
		Provider:     stack,
		Controller:   stack,
		Router:       router,
		Permissions:  permissions,
		Notifier:     notifier,
	}, &Config{ActionTimeout: 5 * time.Second, Clock: clock, Logger: phonesdk.NopLogger{}})
	if err != nil {
		t.Fatalf("NewBridge failed: %v", err)
	}
	stack.SetDelegate(bridge)

	return &fixture{
		orch:     orch,
		adapter:  adapter,
		stack:    stack,
		bridge:   bridge,
		session:  session,
		router:   router,
		notifier: notifier,
		clock:    clock,
	}
}

func reportsOf(reports []Report, kind ReportKind) []Report {
	var out []Report
	for _, r := range reports {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}
