/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

// CodecType distinguishes audio from video codecs
type CodecType string

const (
	CodecTypeAudio CodecType = "audio"
	CodecTypeVideo CodecType = "video"
)

// Codec describes a codec reported by the signaling adapter. Value is the
// adapter-specific payload (e.g. a payload type or an SDK enum) and takes no
// part in equality.
type Codec struct {
	Name  string    `json:"name"`
	Type  CodecType `json:"type"`
	Value any       `json:"value,omitempty"`
}

// Equal compares codecs by name and type only.
func (c Codec) Equal(other Codec) bool {
	return c.Name == other.Name && c.Type == other.Type
}

// SRTPPolicy is the SRTP negotiation policy
type SRTPPolicy string

const (
	SRTPPolicyNone   SRTPPolicy = "none"
	SRTPPolicyPrefer SRTPPolicy = "prefer"
	SRTPPolicyForce  SRTPPolicy = "force"
)

// SRTPOption is one SRTP choice offered by the adapter.
type SRTPOption struct {
	Name   string     `json:"name"`
	Policy SRTPPolicy `json:"policy"`
	Value  any        `json:"value,omitempty"`
}

// Equal compares options by name and policy only.
func (o SRTPOption) Equal(other SRTPOption) bool {
	return o.Name == other.Name && o.Policy == other.Policy
}

// Settings is the codec and SRTP selection pushed to the adapter.
type Settings struct {
	AudioCodecs  []Codec     `json:"audioCodecs,omitempty"`
	VideoCodecs  []Codec     `json:"videoCodecs,omitempty"`
	SRTP         *SRTPOption `json:"srtp,omitempty"`
	VideoEnabled bool        `json:"videoEnabled"`
}

// Contains reports whether codec is selected in s.
func (s Settings) Contains(codec Codec) bool {
	list := s.AudioCodecs
	if codec.Type == CodecTypeVideo {
		list = s.VideoCodecs
	}
	for _, c := range list {
		if c.Equal(codec) {
			return true
		}
	}
	return false
}

// HasCodecs reports whether at least one audio or video codec is selected.
func (s Settings) HasCodecs() bool {
	return len(s.AudioCodecs) > 0 || len(s.VideoCodecs) > 0
}

// Clone returns a deep copy of the codec lists.
func (s Settings) Clone() Settings {
	out := s
	out.AudioCodecs = append([]Codec(nil), s.AudioCodecs...)
	out.VideoCodecs = append([]Codec(nil), s.VideoCodecs...)
	if s.SRTP != nil {
		srtp := *s.SRTP
		out.SRTP = &srtp
	}
	return out
}
