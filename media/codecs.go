/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package media runs the RTP side of a call on a pion PeerConnection: codec
// registration from the selected settings, the local audio track, mute and
// hold gating, and RFC 4733 DTMF events.
package media

import (
	"fmt"
	"strings"

	"github.com/automat-berlin/afone/calling"
	"github.com/pion/webrtc/v4"
)

// MimeTypeTelephoneEvent is the RFC 4733 payload format.
const MimeTypeTelephoneEvent = "audio/telephone-event"

// TelephoneEventPayloadType is the dynamic payload type used for DTMF.
const TelephoneEventPayloadType = 101

type codecEntry struct {
	name       string
	kind       webrtc.RTPCodecType
	capability webrtc.RTPCodecCapability
	payload    webrtc.PayloadType
}

var codecTable = []codecEntry{
	{"PCMU", webrtc.RTPCodecTypeAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000}, 0},
	{"PCMA", webrtc.RTPCodecTypeAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMA, ClockRate: 8000}, 8},
	{"G722", webrtc.RTPCodecTypeAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeG722, ClockRate: 8000}, 9},
	{"opus", webrtc.RTPCodecTypeAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2, SDPFmtpLine: "minptime=10;useinbandfec=1"}, 111},
	{"VP8", webrtc.RTPCodecTypeVideo, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, 96},
	{"VP9", webrtc.RTPCodecTypeVideo, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=0"}, 98},
	{"H264", webrtc.RTPCodecTypeVideo, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000, SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f"}, 102},
}

func catalog(kind webrtc.RTPCodecType, codecType calling.CodecType) []calling.Codec {
	var out []calling.Codec
	for _, e := range codecTable {
		if e.kind == kind {
			out = append(out, calling.Codec{Name: e.name, Type: codecType, Value: int(e.payload)})
		}
	}
	return out
}

// AudioCodecs returns every audio codec the engine can register.
func AudioCodecs() []calling.Codec {
	return catalog(webrtc.RTPCodecTypeAudio, calling.CodecTypeAudio)
}

// VideoCodecs returns every video codec the engine can register.
func VideoCodecs() []calling.Codec {
	return catalog(webrtc.RTPCodecTypeVideo, calling.CodecTypeVideo)
}

// SRTPOptions returns the SRTP choices. pion always negotiates DTLS-SRTP, so
// the options only differ in how a plain RTP offer from the peer is treated.
func SRTPOptions() []calling.SRTPOption {
	return []calling.SRTPOption{
		{Name: "None", Policy: calling.SRTPPolicyNone},
		{Name: "Prefer", Policy: calling.SRTPPolicyPrefer},
		{Name: "Force", Policy: calling.SRTPPolicyForce},
	}
}

// DefaultAudioCodecs is the selection used when settings carry none.
func DefaultAudioCodecs() []calling.Codec {
	return []calling.Codec{
		{Name: "PCMU", Type: calling.CodecTypeAudio, Value: 0},
		{Name: "PCMA", Type: calling.CodecTypeAudio, Value: 8},
	}
}

func lookup(codec calling.Codec) (codecEntry, bool) {
	for _, e := range codecTable {
		if strings.EqualFold(e.name, codec.Name) && string(codec.Type) == e.kind.String() {
			return e, true
		}
	}
	return codecEntry{}, false
}

// registerCodecs registers the selected codecs plus telephone-event on m. It
// returns the first registered audio capability for the local track.
func registerCodecs(m *webrtc.MediaEngine, audio, video []calling.Codec) (webrtc.RTPCodecCapability, error) {
	if len(audio) == 0 {
		audio = DefaultAudioCodecs()
	}

	var first *webrtc.RTPCodecCapability
	for _, codec := range append(append([]calling.Codec(nil), audio...), video...) {
		e, ok := lookup(codec)
		if !ok {
			return webrtc.RTPCodecCapability{}, fmt.Errorf("unsupported codec %s/%s", codec.Type, codec.Name)
		}
		if err := m.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: e.capability,
			PayloadType:        e.payload,
		}, e.kind); err != nil {
			return webrtc.RTPCodecCapability{}, fmt.Errorf("failed to register %s: %w", e.name, err)
		}
		if first == nil && e.kind == webrtc.RTPCodecTypeAudio {
			c := e.capability
			first = &c
		}
	}

	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: MimeTypeTelephoneEvent, ClockRate: 8000, SDPFmtpLine: "0-16"},
		PayloadType:        TelephoneEventPayloadType,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return webrtc.RTPCodecCapability{}, fmt.Errorf("failed to register telephone-event: %w", err)
	}

	if first == nil {
		return webrtc.RTPCodecCapability{}, fmt.Errorf("no audio codec selected")
	}
	return *first, nil
}
