/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package media

import (
	"fmt"
	"strings"

	"github.com/automat-berlin/afone/calling"
	"github.com/pion/sdp/v3"
)

// static payload types that may appear without an rtpmap line
var staticPayloads = map[string]string{
	"0": "PCMU",
	"8": "PCMA",
	"9": "G722",
}

// NegotiatedCodecs lists the codecs of a session description in offer order,
// skipping telephone-event and the codecs the engine does not know.
func NegotiatedCodecs(raw string) ([]calling.Codec, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return nil, fmt.Errorf("failed to parse session description: %w", err)
	}

	var codecs []calling.Codec
	for _, md := range desc.MediaDescriptions {
		codecType := calling.CodecType(md.MediaName.Media)
		if codecType != calling.CodecTypeAudio && codecType != calling.CodecTypeVideo {
			continue
		}

		names := make(map[string]string)
		for _, attr := range md.Attributes {
			if attr.Key != "rtpmap" {
				continue
			}
			pt, encoding, ok := strings.Cut(attr.Value, " ")
			if !ok {
				continue
			}
			name, _, _ := strings.Cut(encoding, "/")
			names[pt] = name
		}

		for _, format := range md.MediaName.Formats {
			name, ok := names[format]
			if !ok {
				name, ok = staticPayloads[format]
			}
			if !ok {
				continue
			}
			codec := calling.Codec{Name: name, Type: codecType}
			e, known := lookup(codec)
			if !known {
				continue
			}
			codec.Name = e.name
			codec.Value = int(e.payload)
			codecs = append(codecs, codec)
		}
	}
	return codecs, nil
}
