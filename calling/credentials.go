/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import "fmt"

// Transport is the signaling transport protocol
type Transport string

const (
	TransportUDP Transport = "udp"
	TransportTCP Transport = "tcp"
	TransportTLS Transport = "tls"
)

const (
	// DefaultServerPort is the standard SIP port.
	DefaultServerPort = 5060
	// DefaultLocalPort is the local signaling port.
	DefaultLocalPort = 10002
)

// Advanced holds the optional account settings
type Advanced struct {
	Port           int       `json:"port"`
	LocalPort      int       `json:"localPort"`
	OutboundServer string    `json:"outboundServer,omitempty"`
	OutboundPort   int       `json:"outboundPort,omitempty"`
	AuthName       string    `json:"authName,omitempty"`
	DisplayName    string    `json:"displayName,omitempty"`
	Transport      Transport `json:"transport"`
	StunServer     string    `json:"stunServer,omitempty"`
	StunPort       int       `json:"stunPort,omitempty"`
	VerifyTLS      bool      `json:"verifyTLS"`
}

// DefaultAdvanced returns the default advanced settings
func DefaultAdvanced() Advanced {
	return Advanced{
		Port:      DefaultServerPort,
		LocalPort: DefaultLocalPort,
		Transport: TransportUDP,
	}
}

// Credentials are handed to SignalingAdapter.InitAdapter.
type Credentials struct {
	Login     string   `json:"login"`
	Password  string   `json:"password"`
	SIPServer string   `json:"sipServer"`
	Advanced  Advanced `json:"advanced"`
}

// Validate checks the fields every adapter needs.
func (c Credentials) Validate() error {
	if c.Login == "" {
		return fmt.Errorf("login is required")
	}
	if c.SIPServer == "" {
		return fmt.Errorf("server is required")
	}
	switch c.Advanced.Transport {
	case "", TransportUDP, TransportTCP, TransportTLS:
	default:
		return fmt.Errorf("unsupported transport %q", c.Advanced.Transport)
	}
	return nil
}

// StunURL returns the STUN server URL, or "" when none is configured.
func (c Credentials) StunURL() string {
	if c.Advanced.StunServer == "" {
		return ""
	}
	if c.Advanced.StunPort > 0 {
		return fmt.Sprintf("stun:%s:%d", c.Advanced.StunServer, c.Advanced.StunPort)
	}
	return "stun:" + c.Advanced.StunServer
}
