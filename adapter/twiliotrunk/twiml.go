/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package twiliotrunk

import (
	"encoding/xml"
	"fmt"
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type playVerb struct {
	XMLName xml.Name `xml:"Play"`
	Loop    string   `xml:"loop,attr,omitempty"`
	Digits  string   `xml:"digits,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type pauseVerb struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type dialVerb struct {
	XMLName xml.Name `xml:"Dial"`
	Sip     string   `xml:"Sip"`
}

type rejectVerb struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

func bridgeTo(endpoint string) dialVerb {
	return dialVerb{Sip: endpoint}
}

// render builds a TwiML document from verbs.
func render(verbs ...any) (string, error) {
	out, err := xml.Marshal(twimlResponse{Verbs: verbs})
	if err != nil {
		return "", fmt.Errorf("failed to render TwiML: %w", err)
	}
	return xml.Header + string(out), nil
}
