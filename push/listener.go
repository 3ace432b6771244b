/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package push

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/automat-berlin/afone/phonesdk"
	"github.com/gorilla/websocket"
)

// Message types exchanged with the push gateway.
const (
	TypeToken      = "token"
	TypePush       = "push"
	TypeInvalidate = "invalidate"
	TypeAck        = "ack"
)

// RegistrationHeader carries Registry.ID on the websocket handshake.
const RegistrationHeader = "X-Registration-Id"

var (
	// ErrNoURL is returned by Connect when no gateway URL is configured.
	ErrNoURL = errors.New("push: no gateway URL configured")

	// ErrConnecting is returned by Connect while an attempt is in progress.
	ErrConnecting = errors.New("push: connection attempt already in progress")

	// ErrUnsigned is reported for push messages without a signature when a
	// Verifier is configured.
	ErrUnsigned = errors.New("push: payload is not signed")
)

// Config holds the configuration for the Listener
type Config struct {
	URL              string        // Gateway websocket URL
	AuthToken        string        // Sent as a bearer token on the handshake
	HandshakeTimeout time.Duration // Websocket handshake timeout
	PingInterval     time.Duration // Interval between ping messages
	PongTimeout      time.Duration // Timeout for receiving a pong response
	BackoffTimeMax   time.Duration // Maximum time between connection attempts
	BackoffTimeReset time.Duration // Initial time before the first retry
	MaxRetries       int           // Number of times to retry a dropped connection

	// InitialConnectionMaxRetries is the number of retries before the first
	// successful connection.
	InitialConnectionMaxRetries int

	// Verifier checks signed payloads. When nil payloads are taken as sent.
	Verifier *Verifier

	// Logger for listener diagnostics. If nil, the phonesdk default logger is used.
	Logger phonesdk.Logger
}

// DefaultConfig returns the default configuration for the Listener
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout:            10 * time.Second,
		PingInterval:                30 * time.Second,
		PongTimeout:                 10 * time.Second,
		BackoffTimeMax:              32 * time.Second,
		BackoffTimeReset:            1 * time.Second,
		MaxRetries:                  3,
		InitialConnectionMaxRetries: 5,
	}
}

// Message is one gateway frame. Token is hex encoded. Push frames carry
// either a raw Payload or a compact JWS in Signed.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Token   string          `json:"token,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Signed  string          `json:"signed,omitempty"`
}

// Listener keeps a websocket to the push gateway and feeds a Registry.
type Listener struct {
	config   *Config
	logger   phonesdk.Logger
	registry *Registry

	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	connecting   bool
	hasConnected bool
	closeCh      chan struct{}
}

// NewListener creates a Listener feeding registry.
func NewListener(registry *Registry, config *Config) *Listener {
	if config == nil {
		config = DefaultConfig()
	}
	return &Listener{
		config:   config,
		logger:   phonesdk.OrDefault(config.Logger),
		registry: registry,
		closeCh:  make(chan struct{}),
	}
}

// Connect dials the gateway, retrying with exponential backoff. Once
// connected, a dropped connection is re-established in the background.
func (l *Listener) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.connected {
		l.mu.Unlock()
		return nil
	}
	if l.connecting {
		l.mu.Unlock()
		return ErrConnecting
	}
	if l.config.URL == "" {
		l.mu.Unlock()
		return ErrNoURL
	}
	l.connecting = true
	closeCh := l.closeCh
	l.mu.Unlock()

	return l.connectWithBackoff(ctx, closeCh)
}

// Disconnect closes the connection and stops reconnecting.
func (l *Listener) Disconnect() error {
	l.mu.Lock()
	if !l.connected && !l.connecting {
		l.mu.Unlock()
		return nil
	}

	close(l.closeCh)
	l.closeCh = make(chan struct{})

	conn := l.conn
	l.conn = nil
	l.connected = false
	l.connecting = false
	l.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnected by client"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	return nil
}

// IsConnected returns whether the gateway connection is up
func (l *Listener) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Listener) connectWithBackoff(ctx context.Context, closeCh chan struct{}) error {
	l.mu.Lock()
	maxRetries := l.config.MaxRetries
	if !l.hasConnected {
		maxRetries = l.config.InitialConnectionMaxRetries
	}
	l.mu.Unlock()

	backoff := l.config.BackoffTimeReset
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
				if backoff > l.config.BackoffTimeMax {
					backoff = l.config.BackoffTimeMax
				}
			case <-closeCh:
				return nil
			case <-ctx.Done():
				l.stopConnecting(closeCh)
				return ctx.Err()
			}
		}

		if err = l.attemptConnection(ctx, closeCh); err == nil {
			return nil
		}
		l.logger.Printf("push: connection attempt %d failed: %v", attempt+1, err)
	}

	l.stopConnecting(closeCh)
	return fmt.Errorf("failed to connect after %d attempts: %w", maxRetries+1, err)
}

func (l *Listener) stopConnecting(closeCh chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closeCh == closeCh {
		l.connecting = false
	}
}

func (l *Listener) attemptConnection(ctx context.Context, closeCh chan struct{}) error {
	header := http.Header{}
	if l.config.AuthToken != "" {
		header.Set("Authorization", "Bearer "+l.config.AuthToken)
	}
	header.Set(RegistrationHeader, l.registry.ID())

	dialer := websocket.Dialer{HandshakeTimeout: l.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, l.config.URL, header)
	if err != nil {
		return fmt.Errorf("failed to connect to push gateway: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Time{})
	})

	l.mu.Lock()
	select {
	case <-closeCh:
		// disconnected while dialing
		l.mu.Unlock()
		conn.Close()
		return nil
	default:
	}
	l.conn = conn
	l.connected = true
	l.connecting = false
	l.hasConnected = true
	l.mu.Unlock()

	done := make(chan struct{})
	go l.startPingPong(conn, closeCh, done)
	go l.listen(conn, closeCh, done)
	return nil
}

func (l *Listener) listen(conn *websocket.Conn, closeCh, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.handleConnectionError(conn, closeCh, err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			l.logger.Printf("push: dropping malformed message: %v", err)
			continue
		}
		l.handleMessage(conn, &msg)
	}
}

func (l *Listener) handleMessage(conn *websocket.Conn, msg *Message) {
	switch msg.Type {
	case TypeToken:
		token, err := hex.DecodeString(msg.Token)
		if err != nil || len(token) == 0 {
			l.logger.Printf("push: dropping invalid token %q", msg.Token)
			return
		}
		l.registry.UpdateToken(token)
	case TypePush:
		payload, err := l.payload(msg)
		if err != nil {
			l.logger.Printf("push: dropping payload %s: %v", msg.ID, err)
			return
		}
		l.registry.Deliver(payload)
		l.ack(conn, msg.ID)
	case TypeInvalidate:
		l.registry.InvalidateToken()
	default:
		l.logger.Printf("push: ignoring message type %q", msg.Type)
	}
}

func (l *Listener) payload(msg *Message) ([]byte, error) {
	if l.config.Verifier == nil {
		if len(msg.Payload) == 0 {
			return nil, errors.New("empty payload")
		}
		return msg.Payload, nil
	}
	if msg.Signed == "" {
		return nil, ErrUnsigned
	}
	return l.config.Verifier.Verify(msg.Signed)
}

// ack is written from the listen goroutine only.
func (l *Listener) ack(conn *websocket.Conn, id string) {
	if id == "" {
		return
	}
	data, err := json.Marshal(Message{ID: id, Type: TypeAck})
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		l.logger.Printf("push: ack %s failed: %v", id, err)
	}
}

func (l *Listener) handleConnectionError(conn *websocket.Conn, closeCh chan struct{}, err error) {
	select {
	case <-closeCh:
		return
	default:
	}

	l.mu.Lock()
	if l.conn != conn {
		l.mu.Unlock()
		return
	}
	l.conn = nil
	l.connected = false
	l.connecting = true
	l.mu.Unlock()

	conn.Close()
	l.logger.Printf("push: connection lost: %v", err)

	go func() {
		if err := l.connectWithBackoff(context.Background(), closeCh); err != nil {
			l.logger.Printf("push: giving up: %v", err)
		}
	}()
}

func (l *Listener) startPingPong(conn *websocket.Conn, closeCh, done chan struct{}) {
	ticker := time.NewTicker(l.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.ping(conn); err != nil {
				// the failed read in listen takes over
				conn.Close()
				return
			}
		case <-closeCh:
			return
		case <-done:
			return
		}
	}
}

func (l *Listener) ping(conn *websocket.Conn) error {
	deadline := time.Now().Add(l.config.PongTimeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	data := fmt.Sprintf("%d", time.Now().UnixMilli())
	return conn.WriteControl(websocket.PingMessage, []byte(data), deadline)
}
