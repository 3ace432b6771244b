/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package twiliotrunk

import (
	"net/http"

	"github.com/automat-berlin/afone/calling"
)

// Twilio call statuses as posted to status callbacks.
const (
	StatusQueued     = "queued"
	StatusInitiated  = "initiated"
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusAnswered   = "answered"
	StatusCompleted  = "completed"
	StatusBusy       = "busy"
	StatusFailed     = "failed"
	StatusNoAnswer   = "no-answer"
	StatusCanceled   = "canceled"
)

// Incoming registers an inbound Twilio call as a ringing incoming call and
// tells the orchestrator about it.
func (a *Adapter) Incoming(sid, from, callerName string) (*calling.Call, error) {
	if !a.IsRegistered() {
		return nil, ErrNotRegistered
	}

	call := calling.NewCall(a.orch)
	l, err := a.addLeg(sid, call, true)
	if err != nil {
		return nil, err
	}
	call.SetSession(l.session)
	call.MarkIncoming()
	call.SetCaller(from, callerName)
	call.SetState(calling.CallStateRinging)

	a.orch.GotIncomingCall(call)
	return call, nil
}

// CallStatus applies a status callback to the leg with sid. Unknown SIDs
// are ignored: the leg was already ended locally.
func (a *Adapter) CallStatus(sid, status string) {
	l, ok := a.legBySid(sid)
	if !ok {
		a.logger.Printf("twiliotrunk: status %s for unknown call %s", status, sid)
		return
	}

	switch status {
	case StatusQueued, StatusInitiated:
		l.call.SetState(calling.CallStateDialing)
	case StatusRinging:
		if !l.incoming {
			l.call.SetState(calling.CallStateRinging)
		}
	case StatusInProgress, StatusAnswered:
		if l.incoming {
			// inbound legs are in progress while they wait to be bridged
			return
		}
		l.call.SetExistsAudio(true)
		l.call.SetState(calling.CallStateTalking)
	case StatusCompleted, StatusBusy, StatusFailed, StatusNoAnswer, StatusCanceled:
		a.removeLeg(l.session)
		a.mu.RLock()
		answered := l.answered
		a.mu.RUnlock()
		if l.incoming && !answered {
			l.call.MarkMissed()
			a.orch.GotMissedCall(l.call)
		}
		l.call.MarkHungUpRemotely()
		l.call.SetState(calling.CallStateTerminated)
	default:
		a.logger.Printf("twiliotrunk: unknown status %q for %s", status, sid)
	}
}

// StatusHandler serves Twilio status callbacks.
func (a *Adapter) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sid, status := r.PostForm.Get("CallSid"), r.PostForm.Get("CallStatus")
		if sid == "" || status == "" {
			http.Error(w, "CallSid and CallStatus are required", http.StatusBadRequest)
			return
		}
		a.CallStatus(sid, status)
		w.WriteHeader(http.StatusNoContent)
	})
}

// VoiceHandler serves the voice webhook of the Twilio number. The caller
// waits on hold TwiML until the call is answered or rejected.
func (a *Adapter) VoiceHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sid, from := r.PostForm.Get("CallSid"), r.PostForm.Get("From")
		if sid == "" || from == "" {
			http.Error(w, "CallSid and From are required", http.StatusBadRequest)
			return
		}
		if _, err := a.Incoming(sid, from, r.PostForm.Get("CallerName")); err != nil {
			a.logger.Printf("twiliotrunk: inbound call %s refused: %v", sid, err)
			doc, _ := render(rejectVerb{Reason: "busy"})
			writeTwiML(w, doc)
			return
		}

		doc, err := render(a.holdVerb())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeTwiML(w, doc)
	})
}

func writeTwiML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}
