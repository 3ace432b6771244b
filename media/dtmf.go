/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package media

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pion/rtp"
)

const (
	dtmfClockRate   = 8000
	dtmfPacketEvery = 20 * time.Millisecond
	dtmfVolume      = 10
	dtmfEndRepeats  = 3
)

// EventForDigit maps a keypad digit to its RFC 4733 event code.
func EventForDigit(digit rune) (uint8, error) {
	switch {
	case digit >= '0' && digit <= '9':
		return uint8(digit - '0'), nil
	case digit == '*':
		return 10, nil
	case digit == '#':
		return 11, nil
	case digit >= 'A' && digit <= 'D':
		return uint8(12 + digit - 'A'), nil
	case digit >= 'a' && digit <= 'd':
		return uint8(12 + digit - 'a'), nil
	}
	return 0, fmt.Errorf("invalid DTMF digit %q", digit)
}

// EncodeEvent builds a telephone-event payload. duration is in timestamp units.
func EncodeEvent(event uint8, end bool, volume uint8, duration uint16) []byte {
	payload := make([]byte, 4)
	payload[0] = event
	payload[1] = volume & 0x3f
	if end {
		payload[1] |= 0x80
	}
	binary.BigEndian.PutUint16(payload[2:], duration)
	return payload
}

// eventPackets returns the packets of one DTMF event starting at seq. All
// packets share the event timestamp; the final packet is repeated.
func eventPackets(event uint8, length time.Duration, ssrc uint32, seq uint16, timestamp uint32) []*rtp.Packet {
	step := uint16(dtmfClockRate * dtmfPacketEvery / time.Second)
	total := uint16(dtmfClockRate * length / time.Second)
	if total < step {
		total = step
	}

	var packets []*rtp.Packet
	add := func(end bool, duration uint16) {
		packets = append(packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         len(packets) == 0,
				PayloadType:    TelephoneEventPayloadType,
				SequenceNumber: seq,
				Timestamp:      timestamp,
				SSRC:           ssrc,
			},
			Payload: EncodeEvent(event, end, dtmfVolume, duration),
		})
		seq++
	}

	for d := step; d < total; d += step {
		add(false, d)
	}
	for i := 0; i < dtmfEndRepeats; i++ {
		add(true, total)
	}
	return packets
}
