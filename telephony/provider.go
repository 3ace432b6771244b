/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package telephony translates between the native telephony integration
// stack (system call UI, audio session activation) and the calling core.
package telephony

import (
	"github.com/automat-berlin/afone/calling"
	"github.com/google/uuid"
)

// HandleType identifies how a remote party is addressed
type HandleType string

const (
	HandleGeneric     HandleType = "generic"
	HandlePhoneNumber HandleType = "phoneNumber"
)

// Handle is the remote party of a reported call
type Handle struct {
	Type  HandleType `json:"type"`
	Value string     `json:"value"`
}

// CallUpdate carries the metadata the native stack shows for a call.
type CallUpdate struct {
	RemoteHandle        Handle `json:"remoteHandle"`
	LocalizedCallerName string `json:"localizedCallerName,omitempty"`
	SupportsDTMF        bool   `json:"supportsDTMF"`
	SupportsHolding     bool   `json:"supportsHolding"`
	SupportsGrouping    bool   `json:"supportsGrouping"`
	SupportsUngrouping  bool   `json:"supportsUngrouping"`
	HasVideo            bool   `json:"hasVideo"`
}

// EndReason tells the native stack why a call ended
type EndReason string

const (
	EndReasonFailed            EndReason = "failed"
	EndReasonRemoteEnded       EndReason = "remoteEnded"
	EndReasonUnanswered        EndReason = "unanswered"
	EndReasonAnsweredElsewhere EndReason = "answeredElsewhere"
	EndReasonDeclinedElsewhere EndReason = "declinedElsewhere"
)

// Provider receives reports about calls. Every report carries the call token.
type Provider interface {
	ReportNewIncomingCall(token uuid.UUID, update CallUpdate, done func(error))
	ReportOutgoingCallStartedConnecting(token uuid.UUID)
	ReportOutgoingCallConnected(token uuid.UUID)
	ReportCallUpdated(token uuid.UUID, update CallUpdate)
	ReportCallEnded(token uuid.UUID, reason EndReason)
	Invalidate()
}

// Controller accepts user-initiated transactions. The native stack answers
// done once the transaction was accepted and later performs the action on
// its ProviderDelegate.
type Controller interface {
	Request(action Action, done func(error))
}

// ProviderDelegate is implemented by the Bridge and driven by the native stack.
type ProviderDelegate interface {
	ProviderDidReset()
	PerformAction(action Action)
	DidActivateAudio()
	DidDeactivateAudio()
}

// Permissions reports whether the capture devices can be used.
type Permissions interface {
	CameraGrantable() bool
	MicrophoneGrantable() bool
}

// StaticPermissions is a fixed Permissions answer.
type StaticPermissions struct {
	Camera     bool
	Microphone bool
}

func (p StaticPermissions) CameraGrantable() bool     { return p.Camera }
func (p StaticPermissions) MicrophoneGrantable() bool { return p.Microphone }

// Notifier surfaces a local notification for a call that was rejected
// without ringing.
type Notifier interface {
	NotifyRejectedCall(call *calling.Call)
}

// AudioStateObserver is told when mute or hold changed through a native action.
type AudioStateObserver interface {
	MuteChanged(call *calling.Call, muted bool)
	HoldChanged(call *calling.Call, onHold bool)
}
