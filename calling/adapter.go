/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

// VideoView is a video surface exposed by an adapter. Media tracks from
// pion/webrtc satisfy it.
type VideoView interface {
	StreamID() string
}

// SignalingAdapter performs the actual call signaling. Implementations are
// selected at construction time and bound with Orchestrator.SetAdapter.
//
// Every completion may be invoked on any goroutine. Implementations report
// network-originated events back through the Orchestrator (GotIncomingCall,
// DidAnswerCall, GotMissedCall) and through the Call setters.
type SignalingAdapter interface {
	// Account lifecycle
	InitAdapter(credentials Credentials, done func(error))
	Reload(settings Settings)
	Logout(done func())
	CancelLogin()
	DidEnterBackground()
	WillEnterForeground()

	// Call control
	AnswerCall(session int, video bool, done func(error))
	HangUp(session int, done func(error))
	Hold(session int, done func(error))
	Unhold(session int, done func(error))
	Mute(session int, mute bool, done func(error))
	RejectCall(session int, code int, done func(error))
	SendDTMF(session int, digit rune)
	CreateCall(to string, video bool, done func(*Call, error))

	// Local audio device
	StartAudio()
	StopAudio()

	// Capabilities
	AudioCodecs() []Codec
	VideoCodecs() []Codec
	SRTPOptions() []SRTPOption
	SupportsVideo() bool
	NeedsCodecs() bool
	LocalVideoView() VideoView
	RemoteVideoView() VideoView
}

// VideoController is implemented by adapters that can control video streams.
type VideoController interface {
	EnableLocalVideo(enable bool, done func(bool))
	EnableRemoteVideo(enable bool, done func(bool))
	ToggleCameraPosition(done func(error))
	UpdateCall(session int, video bool, done func(error))
}

// PushHandler is implemented by adapters that accept push payloads.
type PushHandler interface {
	HandlePushPayload(payload []byte)
}
