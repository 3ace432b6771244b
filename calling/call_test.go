/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewCall(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	call := NewCall(o)

	if call.GetSessionID() != NoSession {
		t.Errorf("Expected session %d, got %d", NoSession, call.GetSessionID())
	}
	if call.HasSession() {
		t.Error("Expected new call to have no session")
	}
	if call.GetToken() == uuid.Nil {
		t.Error("Expected a non-nil token")
	}
	if call.GetState() != CallStateUnknown {
		t.Errorf("Expected state unknown, got %s", call.GetState())
	}
	if call.GetCaller() != UnknownParty || call.GetCallee() != UnknownParty {
		t.Errorf("Expected unknown parties, got %q/%q", call.GetCaller(), call.GetCallee())
	}
	if call.GetDurationString() != "00:00:00" {
		t.Errorf("Expected duration 00:00:00, got %s", call.GetDurationString())
	}

	other := NewCall(o)
	if other.GetToken() == call.GetToken() {
		t.Error("Expected distinct tokens for distinct calls")
	}
}

func TestCallState_String(t *testing.T) {
	tests := []struct {
		state CallState
		want  string
	}{
		{CallStateUnknown, "unknown"},
		{CallStateInitialized, "initialized"},
		{CallStateDialing, "dialing"},
		{CallStateRinging, "ringing"},
		{CallStateAnswering, "answering"},
		{CallStateTalking, "talking"},
		{CallStateHolding, "holding"},
		{CallStateTerminated, "terminated"},
		{CallState(42), "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
	if !CallStateTerminated.IsTerminal() || CallStateTalking.IsTerminal() {
		t.Error("Expected only terminated to be terminal")
	}
}

func TestCall_SetState(t *testing.T) {
	t.Run("notifies on every actual change", func(t *testing.T) {
		call := NewCall(nil)
		obs := &recordingObserver{}
		call.AddObserver(obs)

		call.SetState(CallStateDialing)
		call.SetState(CallStateDialing)
		call.SetState(CallStateRinging)

		got := obs.seen()
		if len(got) != 2 || got[0] != CallStateDialing || got[1] != CallStateRinging {
			t.Errorf("Expected [dialing ringing], got %v", got)
		}
	})

	t.Run("terminated is absorbing", func(t *testing.T) {
		call := NewCall(nil)
		obs := &recordingObserver{}
		call.AddObserver(obs)

		call.SetState(CallStateTerminated)
		for _, s := range []CallState{CallStateTalking, CallStateRinging, CallStateUnknown, CallStateTerminated} {
			call.SetState(s)
			if call.GetState() != CallStateTerminated {
				t.Fatalf("Expected terminated after SetState(%s), got %s", s, call.GetState())
			}
		}
		if len(obs.seen()) != 1 {
			t.Errorf("Expected exactly one notification, got %v", obs.seen())
		}
	})

	t.Run("removed observer is skipped", func(t *testing.T) {
		call := NewCall(nil)
		obs := &recordingObserver{}
		call.AddObserver(obs)
		call.RemoveObserver(obs)
		call.SetState(CallStateRinging)
		if len(obs.seen()) != 0 {
			t.Errorf("Expected no notifications, got %v", obs.seen())
		}
	})
}

type durationRecorder struct {
	mu      sync.Mutex
	seconds []int
	strings []string
}

func (d *durationRecorder) DurationChanged(seconds int, _ *Call) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seconds = append(d.seconds, seconds)
}

func (d *durationRecorder) DurationStringChanged(formatted string, _ *Call) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strings = append(d.strings, formatted)
}

func TestCall_DurationTimer(t *testing.T) {
	t.Run("talking starts exactly one timer", func(t *testing.T) {
		o, _, clock := newTestOrchestrator(t)
		call := NewCall(o)
		rec := &durationRecorder{}
		call.AddDurationObserver(rec)

		call.SetState(CallStateTalking)
		if clock.Pending() != 1 {
			t.Fatalf("Expected 1 armed timer, got %d", clock.Pending())
		}
		call.SetState(CallStateHolding)
		call.SetState(CallStateTalking)
		if clock.Pending() != 1 {
			t.Fatalf("Expected still 1 armed timer after re-entering talking, got %d", clock.Pending())
		}

		clock.Advance(3 * time.Second)
		if call.GetDuration() != 3 {
			t.Errorf("Expected duration 3, got %d", call.GetDuration())
		}
		if call.GetDurationString() != "00:00:03" {
			t.Errorf("Expected 00:00:03, got %s", call.GetDurationString())
		}
		if len(rec.seconds) != 3 || rec.strings[2] != "00:00:03" {
			t.Errorf("Expected 3 ticks ending at 00:00:03, got %v %v", rec.seconds, rec.strings)
		}
	})

	t.Run("terminated stops the timer", func(t *testing.T) {
		o, _, clock := newTestOrchestrator(t)
		call := NewCall(o)
		call.SetState(CallStateTalking)
		clock.Advance(time.Second)
		call.SetState(CallStateTerminated)

		if clock.Pending() != 0 {
			t.Errorf("Expected no armed timers, got %d", clock.Pending())
		}
		clock.Advance(10 * time.Second)
		if call.GetDuration() != 1 {
			t.Errorf("Expected duration to stay 1, got %d", call.GetDuration())
		}
	})

	t.Run("no timer before talking", func(t *testing.T) {
		o, _, clock := newTestOrchestrator(t)
		call := NewCall(o)
		call.SetState(CallStateRinging)
		if clock.Pending() != 0 {
			t.Errorf("Expected no timer, got %d", clock.Pending())
		}
	})
}

func TestCall_SessionMissing(t *testing.T) {
	o, adapter, _ := newTestOrchestrator(t)
	call := NewCall(o)

	verbs := map[string]func(done func(error)){
		"accept":  call.Accept,
		"hangup":  call.Hangup,
		"reject":  call.Reject,
		"hold":    call.Hold,
		"unhold":  call.Unhold,
		"mute":    func(done func(error)) { call.Mute(true, done) },
		"updateV": func(done func(error)) { call.UpdateVideo(true, done) },
	}
	for name, verb := range verbs {
		t.Run(name, func(t *testing.T) {
			var got error
			verb(func(err error) { got = err })
			if !errors.Is(got, ErrSessionMissing) {
				t.Errorf("Expected ErrSessionMissing, got %v", got)
			}
		})
	}

	if len(adapter.invoked()) != 0 {
		t.Errorf("Expected adapter untouched, got %v", adapter.invoked())
	}
	if call.GetState() != CallStateUnknown {
		t.Errorf("Expected state unchanged, got %s", call.GetState())
	}
}

func TestCall_Accept(t *testing.T) {
	t.Run("success moves to talking", func(t *testing.T) {
		o, _, _ := newTestOrchestrator(t)
		call := newSessionCall(o)
		var got error = errors.New("not called")
		call.Accept(func(err error) { got = err })
		if got != nil {
			t.Fatalf("Expected nil error, got %v", got)
		}
		if call.GetState() != CallStateTalking {
			t.Errorf("Expected talking, got %s", call.GetState())
		}
	})

	t.Run("failure keeps state", func(t *testing.T) {
		o, adapter, _ := newTestOrchestrator(t)
		adapter.answerErr = NewActionFailed(500, "server error")
		call := newSessionCall(o)
		call.SetState(CallStateRinging)

		var got error
		call.Accept(func(err error) { got = err })
		var failed *ActionFailedError
		if !errors.As(got, &failed) || failed.Code != 500 {
			t.Errorf("Expected ActionFailedError 500, got %v", got)
		}
		if call.GetState() != CallStateRinging {
			t.Errorf("Expected ringing, got %s", call.GetState())
		}
	})

	t.Run("no adapter drops silently", func(t *testing.T) {
		o := NewOrchestrator(nil)
		call := newSessionCall(o)
		called := false
		call.Accept(func(error) { called = true })
		if called {
			t.Error("Expected completion not to be invoked without an adapter")
		}
	})
}

func TestCall_Hangup(t *testing.T) {
	o, adapter, _ := newTestOrchestrator(t)
	call := newSessionCall(o)
	call.SetState(CallStateTalking)

	adapter.hangupErr = errors.New("transport down")
	call.Hangup(nil)
	if call.GetState() != CallStateTalking {
		t.Fatalf("Expected talking after failed hangup, got %s", call.GetState())
	}

	adapter.hangupErr = nil
	call.Hangup(nil)
	if call.GetState() != CallStateTerminated {
		t.Errorf("Expected terminated, got %s", call.GetState())
	}
}

func TestCall_Reject(t *testing.T) {
	t.Run("terminates before the adapter answers", func(t *testing.T) {
		o, adapter, _ := newTestOrchestrator(t)
		call := newSessionCall(o)
		call.SetState(CallStateRinging)

		var stateAtCompletion CallState
		call.Reject(func(error) { stateAtCompletion = call.GetState() })

		if stateAtCompletion != CallStateTerminated {
			t.Errorf("Expected terminated before completion, got %s", stateAtCompletion)
		}
		if len(adapter.rejectCodes) != 1 || adapter.rejectCodes[0] != BusyCode {
			t.Errorf("Expected reject with code %d, got %v", BusyCode, adapter.rejectCodes)
		}
	})

	t.Run("failure does not roll back", func(t *testing.T) {
		o, adapter, _ := newTestOrchestrator(t)
		adapter.rejectErr = errors.New("no route")
		call := newSessionCall(o)
		call.SetState(CallStateRinging)

		var got error
		call.Reject(func(err error) { got = err })
		if got == nil {
			t.Error("Expected reject error to reach the completion")
		}
		if call.GetState() != CallStateTerminated {
			t.Errorf("Expected terminated, got %s", call.GetState())
		}
	})
}

func TestCall_Mute(t *testing.T) {
	o, adapter, _ := newTestOrchestrator(t)
	call := newSessionCall(o)

	call.Mute(true, nil)
	if !call.IsMuted() {
		t.Fatal("Expected muted after success")
	}

	adapter.muteErr = errors.New("failed")
	call.Mute(false, nil)
	if !call.IsMuted() {
		t.Error("Expected mute flag untouched after failure")
	}
}

func TestCall_HoldUnhold(t *testing.T) {
	t.Run("hold success then unhold failure stays held", func(t *testing.T) {
		o, adapter, _ := newTestOrchestrator(t)
		call := newSessionCall(o)

		call.Hold(nil)
		if !call.IsOnHold() {
			t.Fatal("Expected on hold")
		}
		adapter.unholdErr = errors.New("481 call does not exist")
		var got error
		call.Unhold(func(err error) { got = err })
		if got == nil {
			t.Error("Expected unhold error")
		}
		if !call.IsOnHold() {
			t.Error("Expected isOnHold restored to true after failed unhold")
		}
	})

	t.Run("hold failure leaves call not held", func(t *testing.T) {
		o, adapter, _ := newTestOrchestrator(t)
		adapter.holdErr = errors.New("failed")
		call := newSessionCall(o)
		call.Hold(nil)
		if call.IsOnHold() {
			t.Error("Expected not on hold after failed hold")
		}
	})

	t.Run("unhold success", func(t *testing.T) {
		o, _, _ := newTestOrchestrator(t)
		call := newSessionCall(o)
		call.Hold(nil)
		call.Unhold(nil)
		if call.IsOnHold() {
			t.Error("Expected not on hold")
		}
	})
}

func TestCall_SendDTMF(t *testing.T) {
	o, adapter, _ := newTestOrchestrator(t)
	call := newSessionCall(o)
	for _, d := range "12#" {
		call.SendDTMF(d)
	}
	if string(adapter.digits) != "12#" {
		t.Errorf("Expected digits 12#, got %q", string(adapter.digits))
	}
	if call.GetState() != CallStateUnknown {
		t.Errorf("Expected no state change, got %s", call.GetState())
	}
}

func TestCall_VideoFlags(t *testing.T) {
	call := NewCall(nil)
	obs := &recordingObserver{}
	call.AddObserver(obs)

	call.SetReceivingVideo(true)
	call.SetReceivingVideo(true)
	call.SetSendingVideo(true)
	call.SetSendingVideo(false)

	if len(obs.receiving) != 1 || !obs.receiving[0] {
		t.Errorf("Expected one receiving=true notification, got %v", obs.receiving)
	}
	if len(obs.sending) != 2 {
		t.Errorf("Expected two sending notifications, got %v", obs.sending)
	}
}

func TestCall_UpdateVideoUnsupported(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	call := newSessionCall(o)
	var got error
	call.UpdateVideo(true, func(err error) { got = err })
	if !errors.Is(got, ErrVideoUnsupported) {
		t.Errorf("Expected ErrVideoUnsupported, got %v", got)
	}
	if call.IsSendingVideo() {
		t.Error("Expected sending video to stay false")
	}
}

func TestCall_AdapterSetters(t *testing.T) {
	call := NewCall(nil)
	call.SetCaller("alice", "Alice A.")
	call.SetCallee("")
	call.MarkIncoming()
	call.MarkMissed()
	call.MarkHungUpRemotely()
	call.SetExistsAudio(true)
	call.SetOnSpeaker(true)

	if call.GetCaller() != "alice" || call.GetDisplayName() != "Alice A." {
		t.Errorf("Unexpected caller %q/%q", call.GetCaller(), call.GetDisplayName())
	}
	if call.GetCallee() != UnknownParty {
		t.Errorf("Expected empty callee to be ignored, got %q", call.GetCallee())
	}
	if !call.IsIncoming() || !call.IsMissed() || !call.IsHungUpRemotely() || !call.ExistsAudio() || !call.IsOnSpeaker() {
		t.Error("Expected all flags to be set")
	}
	if call.SupportsVideo() {
		t.Error("Expected no video support without an orchestrator")
	}
}
