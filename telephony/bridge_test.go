/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package telephony

import (
	"errors"
	"testing"
	"time"

	"github.com/automat-berlin/afone/audio"
	"github.com/automat-berlin/afone/calling"
	"github.com/google/uuid"
)

var granted = StaticPermissions{Camera: true, Microphone: true}

// answered returns a fixture with an incoming call answered through the stack.
func answered(t *testing.T) (*fixture, *calling.Call) {
	t.Helper()
	f := newFixture(t, granted)
	call := f.adapter.incoming("100", "Alice")
	var err error
	f.stack.Answer(call.GetToken(), func(e error) { err = e })
	if err != nil {
		t.Fatalf("Answer request failed: %v", err)
	}
	if call.GetState() != calling.CallStateTalking {
		t.Fatalf("Expected talking, got %s", call.GetState())
	}
	return f, call
}

func TestNewBridge(t *testing.T) {
	stack := NewStack(nil)
	orch := calling.NewOrchestrator(nil)

	tests := []struct {
		name string
		deps Dependencies
	}{
		{"missing orchestrator", Dependencies{Provider: stack, Controller: stack}},
		{"missing provider", Dependencies{Orchestrator: orch, Controller: stack}},
		{"missing controller", Dependencies{Orchestrator: orch, Provider: stack}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBridge(tt.deps, nil); err == nil {
				t.Error("Expected error")
			}
		})
	}

	t.Run("defaults", func(t *testing.T) {
		b, err := NewBridge(Dependencies{Orchestrator: orch, Provider: stack, Controller: stack}, &Config{})
		if err != nil {
			t.Fatalf("Expected nil error, got %v", err)
		}
		if b.config.ActionTimeout != 30*time.Second {
			t.Errorf("Expected default timeout, got %v", b.config.ActionTimeout)
		}
		if b.ActiveCall() != nil {
			t.Error("Expected no active call")
		}
	})
}

func TestBridge_IncomingCall(t *testing.T) {
	f := newFixture(t, granted)
	call := f.adapter.incoming("100", "Alice")

	if f.bridge.ActiveCall() != call {
		t.Fatal("Expected incoming call to become active")
	}
	incoming := reportsOf(f.stack.Reports(), ReportNewIncoming)
	if len(incoming) != 1 {
		t.Fatalf("Expected one incoming report, got %d", len(incoming))
	}
	r := incoming[0]
	if r.Token != call.GetToken() {
		t.Error("Expected report to carry the call token")
	}
	if r.Update.LocalizedCallerName != "Alice" || r.Update.RemoteHandle.Value != "100" {
		t.Errorf("Unexpected update %+v", r.Update)
	}
	if !r.Update.SupportsDTMF || !r.Update.SupportsHolding || r.Update.SupportsGrouping {
		t.Errorf("Unexpected capabilities %+v", r.Update)
	}
	if f.router.Profile() != audio.ProfileVoice {
		t.Errorf("Expected voice profile, got %s", f.router.Profile())
	}

	t.Run("caller name falls back to handle", func(t *testing.T) {
		f := newFixture(t, granted)
		f.adapter.incoming("200", "")
		incoming := reportsOf(f.stack.Reports(), ReportNewIncoming)
		if len(incoming) != 1 || incoming[0].Update.LocalizedCallerName != "200" {
			t.Errorf("Expected name 200, got %+v", incoming)
		}
	})
}

func TestBridge_AnswerAndEnd(t *testing.T) {
	f, call := answered(t)

	if !f.stack.AudioActive() {
		t.Error("Expected audio to be activated by the answer")
	}
	if f.adapter.count("startAudio") != 1 {
		t.Errorf("Expected StartAudio once, got %d", f.adapter.count("startAudio"))
	}

	var err error
	f.stack.End(call.GetToken(), func(e error) { err = e })
	if err != nil {
		t.Fatalf("End request failed: %v", err)
	}
	if f.adapter.count("hangup") != 1 || f.adapter.count("reject") != 0 {
		t.Errorf("Expected exactly one hangup, got %v", f.adapter.invoked())
	}
	if call.GetState() != calling.CallStateTerminated {
		t.Errorf("Expected terminated, got %s", call.GetState())
	}
	if f.bridge.ActiveCall() != nil {
		t.Error("Expected active call to be cleared")
	}
	if f.adapter.count("stopAudio") != 1 {
		t.Errorf("Expected StopAudio once, got %d", f.adapter.count("stopAudio"))
	}
	if f.router.Profile() != audio.ProfileIdle {
		t.Errorf("Expected idle profile, got %s", f.router.Profile())
	}
	if len(reportsOf(f.stack.Reports(), ReportEnded)) != 0 {
		t.Error("Expected no ended report for a local hangup")
	}
}

func TestBridge_EndDeclinesRingingCall(t *testing.T) {
	f := newFixture(t, granted)
	call := f.adapter.incoming("100", "Alice")

	f.stack.End(call.GetToken(), nil)

	if f.adapter.count("reject") != 1 || f.adapter.count("hangup") != 0 {
		t.Errorf("Expected exactly one reject, got %v", f.adapter.invoked())
	}
	if call.GetState() != calling.CallStateTerminated {
		t.Errorf("Expected terminated, got %s", call.GetState())
	}
	if f.bridge.ActiveCall() != nil {
		t.Error("Expected active call to be cleared")
	}
}

func TestBridge_RemoteHangup(t *testing.T) {
	f, call := answered(t)

	call.MarkHungUpRemotely()
	call.SetState(calling.CallStateTerminated)

	ended := reportsOf(f.stack.Reports(), ReportEnded)
	if len(ended) != 1 {
		t.Fatalf("Expected one ended report, got %d", len(ended))
	}
	if ended[0].Reason != EndReasonRemoteEnded || ended[0].Token != call.GetToken() {
		t.Errorf("Unexpected ended report %+v", ended[0])
	}
	if f.adapter.count("hangup") != 0 || f.adapter.count("reject") != 0 {
		t.Errorf("Expected no hangup or reject, got %v", f.adapter.invoked())
	}
	if f.bridge.ActiveCall() != nil {
		t.Error("Expected active call to be cleared")
	}

	t.Run("refused end request still reports", func(t *testing.T) {
		f, call := answered(t)
		f.stack.Invalidate()

		call.MarkHungUpRemotely()
		call.SetState(calling.CallStateTerminated)

		ended := reportsOf(f.stack.Reports(), ReportEnded)
		if len(ended) != 1 || ended[0].Reason != EndReasonRemoteEnded {
			t.Errorf("Expected remote-ended report, got %+v", ended)
		}
		if f.bridge.ActiveCall() != nil {
			t.Error("Expected active call to be cleared")
		}
	})
}

func TestBridge_EndCallAction(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		setup     func(t *testing.T) (*fixture, *calling.Call)
		wantErr   error
		wantState calling.CallState
		wantVerb  string
	}{
		{
			name:      "talking hangs up",
			setup:     answered,
			wantState: calling.CallStateTerminated,
			wantVerb:  "hangup",
		},
		{
			name: "talking with failing hangup",
			setup: func(t *testing.T) (*fixture, *calling.Call) {
				f, call := answered(t)
				f.adapter.hangupErr = boom
				return f, call
			},
			wantErr:   boom,
			wantState: calling.CallStateTalking,
			wantVerb:  "hangup",
		},
		{
			name: "ringing rejects",
			setup: func(t *testing.T) (*fixture, *calling.Call) {
				f := newFixture(t, granted)
				return f, f.adapter.incoming("100", "Alice")
			},
			wantState: calling.CallStateTerminated,
			wantVerb:  "reject",
		},
		{
			name: "ringing with failing reject",
			setup: func(t *testing.T) (*fixture, *calling.Call) {
				f := newFixture(t, granted)
				f.adapter.rejectErr = boom
				return f, f.adapter.incoming("100", "Alice")
			},
			wantErr:   boom,
			wantState: calling.CallStateTerminated,
			wantVerb:  "reject",
		},
		{
			name: "remote ended",
			setup: func(t *testing.T) (*fixture, *calling.Call) {
				f, call := answered(t)
				// keep the bridge from ending the call on its own
				call.RemoveObserver(f.bridge)
				call.MarkHungUpRemotely()
				call.SetState(calling.CallStateTerminated)
				return f, call
			},
			wantState: calling.CallStateTerminated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, call := tt.setup(t)
			action := NewEndCallAction(call.GetToken())
			f.bridge.PerformAction(action)

			result, done := action.Result()
			if !done {
				t.Fatal("Expected action to be complete")
			}
			if tt.wantErr != nil {
				if result.Fulfilled || !errors.Is(result.Err, tt.wantErr) {
					t.Errorf("Expected failure with %v, got %+v", tt.wantErr, result)
				}
			} else if !result.Fulfilled || result.Err != nil {
				t.Errorf("Expected fulfilled, got %+v", result)
			}
			if f.bridge.ActiveCall() != nil {
				t.Error("Expected active call to be cleared")
			}
			if call.GetState() != tt.wantState {
				t.Errorf("Expected %s, got %s", tt.wantState, call.GetState())
			}
			for _, verb := range []string{"hangup", "reject"} {
				want := 0
				if verb == tt.wantVerb {
					want = 1
				}
				if f.adapter.count(verb) != want {
					t.Errorf("Expected %d %s, got %v", want, verb, f.adapter.invoked())
				}
			}
			ended := reportsOf(f.stack.Reports(), ReportEnded)
			if tt.wantVerb == "" {
				if len(ended) != 1 || ended[0].Reason != EndReasonRemoteEnded {
					t.Errorf("Expected remote-ended report, got %+v", ended)
				}
			} else if len(ended) != 0 {
				t.Errorf("Expected no ended report, got %+v", ended)
			}
		})
	}
}

func TestBridge_AnswerCallActionFailure(t *testing.T) {
	boom := errors.New("boom")
	f := newFixture(t, granted)
	f.adapter.answerErr = boom
	call := f.adapter.incoming("100", "Alice")

	action := NewAnswerCallAction(call.GetToken())
	f.bridge.PerformAction(action)

	result, done := action.Result()
	if !done {
		t.Fatal("Expected action to be complete")
	}
	if result.Fulfilled || !errors.Is(result.Err, boom) {
		t.Errorf("Expected failure with boom, got %+v", result)
	}
	if call.GetState() != calling.CallStateRinging {
		t.Errorf("Expected call to stay ringing, got %s", call.GetState())
	}
	if f.bridge.ActiveCall() != call {
		t.Error("Expected active call to be kept")
	}
}

func TestBridge_TokenMismatch(t *testing.T) {
	f := newFixture(t, granted)
	call := f.adapter.incoming("100", "Alice")

	actions := []Action{
		NewAnswerCallAction(uuid.New()),
		NewEndCallAction(uuid.New()),
		NewSetMutedCallAction(uuid.New(), true),
		NewSetHeldCallAction(uuid.New(), true),
		NewPlayDTMFCallAction(uuid.New(), "1"),
	}
	for _, action := range actions {
		t.Run(string(action.Kind()), func(t *testing.T) {
			f.bridge.PerformAction(action)
			result, done := action.Result()
			if !done {
				t.Fatal("Expected action to be complete")
			}
			if !errors.Is(result.Err, ErrTokenMismatch) {
				t.Errorf("Expected ErrTokenMismatch, got %v", result.Err)
			}
		})
	}

	for _, verb := range []string{"answer", "hangup", "reject", "mute", "hold", "dtmf"} {
		if f.adapter.count(verb) != 0 {
			t.Errorf("Expected %s untouched, got %v", verb, f.adapter.invoked())
		}
	}
	if f.bridge.ActiveCall() != call {
		t.Error("Expected active call to be kept")
	}
	if call.GetState() != calling.CallStateRinging || call.IsMuted() || call.IsOnHold() {
		t.Errorf("Expected call untouched, got %s muted=%v held=%v",
			call.GetState(), call.IsMuted(), call.IsOnHold())
	}
}

func TestBridge_PermissionDenied(t *testing.T) {
	f := newFixture(t, StaticPermissions{})
	call := f.adapter.incoming("100", "Alice")

	if !call.IsMissed() {
		t.Error("Expected call to be marked missed")
	}
	if call.GetState() != calling.CallStateTerminated {
		t.Errorf("Expected terminated, got %s", call.GetState())
	}
	if f.adapter.count("reject") != 1 {
		t.Errorf("Expected one reject, got %v", f.adapter.invoked())
	}
	if f.notifier.count() != 1 {
		t.Errorf("Expected one notification, got %d", f.notifier.count())
	}
	if len(f.stack.Reports()) != 0 {
		t.Errorf("Expected nothing reported, got %+v", f.stack.Reports())
	}
	if f.bridge.ActiveCall() != nil {
		t.Error("Expected no active call")
	}

	t.Run("one grantable device is enough", func(t *testing.T) {
		f := newFixture(t, StaticPermissions{Microphone: true})
		f.adapter.incoming("100", "Alice")
		if len(reportsOf(f.stack.Reports(), ReportNewIncoming)) != 1 {
			t.Error("Expected the call to be reported")
		}
		if f.notifier.count() != 0 {
			t.Error("Expected no notification")
		}
	})
}

func TestBridge_RegistrationFailure(t *testing.T) {
	f := newFixture(t, granted)
	f.stack.SetIncomingFilter(func(uuid.UUID, CallUpdate) error {
		return errors.New("do not disturb")
	})

	call := f.adapter.incoming("100", "Alice")

	if f.router.Profile() != audio.ProfileIdle {
		t.Errorf("Expected idle profile, got %s", f.router.Profile())
	}
	ended := reportsOf(f.stack.Reports(), ReportEnded)
	if len(ended) != 1 || ended[0].Reason != EndReasonUnanswered || ended[0].Token != call.GetToken() {
		t.Errorf("Expected unanswered report, got %+v", ended)
	}
	if f.bridge.ActiveCall() != nil {
		t.Error("Expected active call to be cleared")
	}
}

func TestBridge_SecondIncomingCallRejected(t *testing.T) {
	f, first := answered(t)
	second := f.adapter.incoming("300", "Bob")

	if f.bridge.ActiveCall() != first {
		t.Error("Expected first call to stay active")
	}
	if second.GetState() != calling.CallStateTerminated {
		t.Errorf("Expected second call rejected, got %s", second.GetState())
	}
	if len(reportsOf(f.stack.Reports(), ReportNewIncoming)) != 1 {
		t.Error("Expected only the first call to be reported")
	}
}

func TestBridge_ActionTimeout(t *testing.T) {
	f := newFixture(t, granted)
	call := f.adapter.incoming("100", "Alice")
	f.adapter.stall = true

	action := NewAnswerCallAction(call.GetToken())
	f.bridge.PerformAction(action)
	if action.IsComplete() {
		t.Fatal("Expected action to wait for the adapter")
	}

	f.clock.Advance(4 * time.Second)
	if action.IsComplete() {
		t.Fatal("Expected action to be pending before the timeout")
	}
	f.clock.Advance(time.Second)

	result, done := action.Result()
	if !done || !errors.Is(result.Err, ErrActionTimeout) {
		t.Errorf("Expected ErrActionTimeout, got %+v", result)
	}

	t.Run("completed action disarms the timeout", func(t *testing.T) {
		f := newFixture(t, granted)
		call := f.adapter.incoming("100", "Alice")
		action := NewSetMutedCallAction(call.GetToken(), false)
		f.bridge.PerformAction(action)
		if !action.IsComplete() {
			t.Fatal("Expected no-op action to complete")
		}
		if f.clock.Pending() != 0 {
			t.Errorf("Expected no armed timers, got %d", f.clock.Pending())
		}
	})
}

type transferAction struct {
	*BaseAction
}

func TestBridge_PerformActionGuards(t *testing.T) {
	f := newFixture(t, granted)

	t.Run("unsupported action", func(t *testing.T) {
		action := &transferAction{BaseAction: newBaseAction("transfer", uuid.New())}
		f.bridge.PerformAction(action)
		result, _ := action.Result()
		if !errors.Is(result.Err, ErrUnsupportedAction) {
			t.Errorf("Expected ErrUnsupportedAction, got %v", result.Err)
		}
	})

	t.Run("panicking handler fails the action", func(t *testing.T) {
		f.bridge.SetStartCallHandler(func(string, bool, func(*calling.Call)) {
			panic("boom")
		})
		action := NewStartCallAction(uuid.New(), "200", false)
		f.bridge.PerformAction(action)
		result, done := action.Result()
		if !done || !errors.Is(result.Err, ErrInternal) {
			t.Errorf("Expected ErrInternal, got %+v", result)
		}
	})
}

func TestBridge_RequestCall(t *testing.T) {
	f := newFixture(t, granted)

	var err error
	called := false
	f.bridge.RequestCall("200", true, func(e error) {
		called = true
		err = e
	})
	if !called || err != nil {
		t.Fatalf("Expected accepted request, got called=%v err=%v", called, err)
	}

	call := f.bridge.ActiveCall()
	if call == nil || call.GetCallee() != "200" {
		t.Fatalf("Expected active call to 200, got %+v", call)
	}
	connecting := reportsOf(f.stack.Reports(), ReportStartedConnecting)
	if len(connecting) != 1 || connecting[0].Token != call.GetToken() {
		t.Errorf("Expected started-connecting for the call token, got %+v", connecting)
	}
	updated := reportsOf(f.stack.Reports(), ReportUpdated)
	if len(updated) != 1 || !updated[0].Update.HasVideo || updated[0].Update.RemoteHandle.Value != "200" {
		t.Errorf("Expected video update for 200, got %+v", updated)
	}
	if !f.stack.AudioActive() {
		t.Error("Expected audio active after start")
	}

	call.SetState(calling.CallStateTalking)
	call.SetState(calling.CallStateHolding)
	call.SetState(calling.CallStateTalking)
	if n := len(reportsOf(f.stack.Reports(), ReportConnected)); n != 1 {
		t.Errorf("Expected one connected report, got %d", n)
	}

	t.Run("creation failure", func(t *testing.T) {
		f := newFixture(t, granted)
		f.adapter.createErr = errors.New("503 service unavailable")
		f.bridge.RequestCall("200", false, nil)
		if f.bridge.ActiveCall() != nil {
			t.Error("Expected no active call")
		}
		if len(f.stack.Calls()) != 0 {
			t.Error("Expected stack to forget the failed call")
		}
		if f.router.Profile() != audio.ProfileIdle {
			t.Errorf("Expected idle profile, got %s", f.router.Profile())
		}
	})

	t.Run("refused request restores audio", func(t *testing.T) {
		f := newFixture(t, granted)
		f.stack.Invalidate()
		var err error
		f.bridge.RequestCall("200", false, func(e error) { err = e })
		if !errors.Is(err, ErrStackInvalidated) {
			t.Errorf("Expected ErrStackInvalidated, got %v", err)
		}
		if f.router.Profile() != audio.ProfileIdle {
			t.Errorf("Expected idle profile, got %s", f.router.Profile())
		}
	})
}

func TestBridge_MuteAndHold(t *testing.T) {
	f, call := answered(t)
	rec := &audioStateRecorder{}
	f.bridge.AddAudioStateObserver(rec)
	token := call.GetToken()

	f.stack.SetMuted(token, true, nil)
	if !call.IsMuted() {
		t.Error("Expected call to be muted")
	}
	f.stack.SetMuted(token, true, nil)
	if f.adapter.count("mute") != 1 {
		t.Errorf("Expected a single mute for an unchanged request, got %d", f.adapter.count("mute"))
	}

	f.stack.SetHeld(token, true, nil)
	if !call.IsOnHold() {
		t.Error("Expected call on hold")
	}
	f.stack.SetHeld(token, false, nil)
	if call.IsOnHold() {
		t.Error("Expected call resumed")
	}
	if f.adapter.count("hold") != 1 || f.adapter.count("unhold") != 1 {
		t.Errorf("Expected hold and unhold once, got %v", f.adapter.invoked())
	}

	if len(rec.muted) != 1 || !rec.muted[0] {
		t.Errorf("Expected mute notification [true], got %v", rec.muted)
	}
	if len(rec.held) != 2 || !rec.held[0] || rec.held[1] {
		t.Errorf("Expected hold notifications [true false], got %v", rec.held)
	}

	t.Run("failed mute keeps state", func(t *testing.T) {
		f, call := answered(t)
		rec := &audioStateRecorder{}
		f.bridge.AddAudioStateObserver(rec)
		f.adapter.muteErr = errors.New("media error")

		action := NewSetMutedCallAction(call.GetToken(), true)
		f.bridge.PerformAction(action)
		result, _ := action.Result()
		if result.Err == nil {
			t.Error("Expected action to fail")
		}
		if call.IsMuted() {
			t.Error("Expected call to stay unmuted")
		}
		if len(rec.muted) != 0 {
			t.Error("Expected no notification")
		}
	})
}

func TestBridge_PlayDTMF(t *testing.T) {
	f, call := answered(t)
	f.stack.PlayDTMF(call.GetToken(), "12#", nil)

	want := []rune{'1', '2', '#'}
	if len(f.adapter.digits) != len(want) {
		t.Fatalf("Expected %q, got %q", want, f.adapter.digits)
	}
	for i := range want {
		if f.adapter.digits[i] != want[i] {
			t.Errorf("Expected %q, got %q", want, f.adapter.digits)
		}
	}
}

func TestBridge_Triggers(t *testing.T) {
	t.Run("without active call", func(t *testing.T) {
		f := newFixture(t, granted)

		tests := []struct {
			name    string
			trigger func(func(error))
			code    int
		}{
			{"mute", f.bridge.TriggerMute, CodeMuteUnavailable},
			{"hold", f.bridge.TriggerHold, CodeHoldUnavailable},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var err error
				tt.trigger(func(e error) { err = e })
				var be *BridgeError
				if !errors.As(err, &be) {
					t.Fatalf("Expected BridgeError, got %v", err)
				}
				if be.Code != tt.code {
					t.Errorf("Expected code %d, got %d", tt.code, be.Code)
				}
				if !errors.Is(err, ErrNoActiveCall) {
					t.Error("Expected ErrNoActiveCall in chain")
				}
			})
		}

		var err error
		f.bridge.RequestEndCall(func(e error) { err = e })
		if !errors.Is(err, ErrNoActiveCall) {
			t.Errorf("Expected ErrNoActiveCall, got %v", err)
		}
	})

	t.Run("with active call", func(t *testing.T) {
		f, call := answered(t)
		f.bridge.TriggerMute(nil)
		if !call.IsMuted() {
			t.Error("Expected TriggerMute to mute")
		}
		f.bridge.TriggerMute(nil)
		if call.IsMuted() {
			t.Error("Expected second TriggerMute to unmute")
		}
		f.bridge.TriggerHold(nil)
		if !call.IsOnHold() {
			t.Error("Expected TriggerHold to hold")
		}
		f.bridge.TriggerDTMF("5", nil)
		if len(f.adapter.digits) != 1 {
			t.Error("Expected one digit sent")
		}
	})

	t.Run("answer trigger", func(t *testing.T) {
		f := newFixture(t, granted)
		call := f.adapter.incoming("100", "Alice")
		f.bridge.TriggerAnswer(nil)
		if call.GetState() != calling.CallStateTalking {
			t.Errorf("Expected talking, got %s", call.GetState())
		}
	})
}

func TestBridge_ProviderReset(t *testing.T) {
	f, call := answered(t)
	f.stack.Reset()

	if call.GetState() != calling.CallStateTerminated {
		t.Errorf("Expected terminated, got %s", call.GetState())
	}
	if f.adapter.count("hangup") != 1 {
		t.Errorf("Expected one hangup, got %v", f.adapter.invoked())
	}
	if f.bridge.ActiveCall() != nil {
		t.Error("Expected no active call")
	}
}

func TestBridge_ReceivingVideoUpdate(t *testing.T) {
	f, call := answered(t)
	call.SetReceivingVideo(true)

	updated := reportsOf(f.stack.Reports(), ReportUpdated)
	if len(updated) != 1 || !updated[0].Update.HasVideo {
		t.Errorf("Expected video update, got %+v", updated)
	}
}
