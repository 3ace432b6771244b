/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package media

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/automat-berlin/afone/calling"
	"github.com/automat-berlin/afone/phonesdk"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// ErrNoLocalTrack is returned when sending before AddAudioTrack.
var ErrNoLocalTrack = errors.New("no local audio track")

// Config holds configuration for an Engine
type Config struct {
	// ICEServers is the list of ICE servers (STUN/TURN) to use
	ICEServers []webrtc.ICEServer

	// AudioCodecs and VideoCodecs select the registered codecs. Empty audio
	// falls back to DefaultAudioCodecs.
	AudioCodecs []calling.Codec
	VideoCodecs []calling.Codec

	// DTMFDuration is the length of one DTMF event (default: 100ms)
	DTMFDuration time.Duration

	// Logger for media diagnostics. If nil, the phonesdk default logger is used.
	Logger phonesdk.Logger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		DTMFDuration: 100 * time.Millisecond,
	}
}

// ConfigFor builds a Config from account credentials and codec settings.
func ConfigFor(credentials calling.Credentials, settings calling.Settings) *Config {
	config := DefaultConfig()
	if url := credentials.StunURL(); url != "" {
		config.ICEServers = []webrtc.ICEServer{{URLs: []string{url}}}
	}
	config.AudioCodecs = settings.AudioCodecs
	if settings.VideoEnabled {
		config.VideoCodecs = settings.VideoCodecs
	}
	return config
}

// Engine owns the PeerConnection and local audio track of one call.
type Engine struct {
	mu             sync.Mutex
	config         *Config
	logger         phonesdk.Logger
	peerConnection *webrtc.PeerConnection
	capability     webrtc.RTPCodecCapability
	localTrack     *webrtc.TrackLocalStaticRTP
	remoteTrack    *webrtc.TrackRemote
	onRemoteTrack  func(track *webrtc.TrackRemote)

	ssrc      uint32
	seq       uint16
	timestamp uint32
	muted     bool
	held      bool
	started   bool
}

// NewEngine creates an Engine with the configured codecs registered.
func NewEngine(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DTMFDuration <= 0 {
		config.DTMFDuration = DefaultConfig().DTMFDuration
	}

	m := &webrtc.MediaEngine{}
	capability, err := registerCodecs(m, config.AudioCodecs, config.VideoCodecs)
	if err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
	)
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: config.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	e := &Engine{
		config:         config,
		logger:         phonesdk.OrDefault(config.Logger),
		peerConnection: pc,
		capability:     capability,
		ssrc:           rand.Uint32(),
		seq:            uint16(rand.Uint32()),
		timestamp:      rand.Uint32(),
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		e.logger.Printf("media: connection state %s", s)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.logger.Printf("media: remote track codec=%s ssrc=%d", track.Codec().MimeType, track.SSRC())
		e.mu.Lock()
		e.remoteTrack = track
		handler := e.onRemoteTrack
		e.mu.Unlock()
		if handler != nil {
			handler(track)
		}
	})

	return e, nil
}

// OnRemoteTrack sets the callback for when a remote track is received
func (e *Engine) OnRemoteTrack(handler func(track *webrtc.TrackRemote)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRemoteTrack = handler
}

// Codec returns the capability of the local audio track
func (e *Engine) Codec() webrtc.RTPCodecCapability {
	return e.capability
}

// AddAudioTrack adds a sendrecv local audio track using the preferred codec.
func (e *Engine) AddAudioTrack() (*webrtc.TrackLocalStaticRTP, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.localTrack != nil {
		return e.localTrack, nil
	}
	track, err := webrtc.NewTrackLocalStaticRTP(e.capability, "audio", "afone")
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}
	transceiver, err := e.peerConnection.AddTransceiverFromTrack(track,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add audio transceiver: %w", err)
	}

	// RTCP must be drained for the interceptors to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := transceiver.Sender().Read(buf); err != nil {
				return
			}
		}
	}()

	e.localTrack = track
	return track, nil
}

// CreateOffer creates an offer and waits for ICE gathering to complete.
func (e *Engine) CreateOffer() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	offer, err := e.peerConnection.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	return e.localDescription(offer)
}

// CreateAnswer creates an answer and waits for ICE gathering to complete.
func (e *Engine) CreateAnswer() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	answer, err := e.peerConnection.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	return e.localDescription(answer)
}

func (e *Engine) localDescription(desc webrtc.SessionDescription) (string, error) {
	gathered := webrtc.GatheringCompletePromise(e.peerConnection)
	if err := e.peerConnection.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}
	<-gathered

	local := e.peerConnection.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("local description is nil after gathering")
	}
	return local.SDP, nil
}

// SetRemoteOffer applies the peer's offer.
func (e *Engine) SetRemoteOffer(sdp string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
}

// SetRemoteAnswer applies the peer's answer. A repeated answer is ignored.
func (e *Engine) SetRemoteAnswer(sdp string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.peerConnection.SignalingState() == webrtc.SignalingStateStable {
		e.logger.Printf("media: ignoring duplicate answer")
		return nil
	}
	return e.peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

// Start enables outbound audio once the audio device is active.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
}

// Stop disables outbound audio.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = false
}

func (e *Engine) IsStarted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// SetMuted gates outbound audio.
func (e *Engine) SetMuted(muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = muted
}

func (e *Engine) IsMuted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// SetHeld gates outbound audio and DTMF while the call is on hold.
func (e *Engine) SetHeld(held bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.held = held
}

func (e *Engine) IsHeld() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.held
}

// WriteAudio sends one encoded audio frame covering samples timestamp units.
// Frames are dropped while the engine is stopped, muted or held.
func (e *Engine) WriteAudio(payload []byte, samples uint32) error {
	e.mu.Lock()
	track := e.localTrack
	if track == nil {
		e.mu.Unlock()
		return ErrNoLocalTrack
	}
	if !e.started || e.muted || e.held {
		e.timestamp += samples
		e.mu.Unlock()
		return nil
	}
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    uint8(e.payloadType()),
			SequenceNumber: e.seq,
			Timestamp:      e.timestamp,
			SSRC:           e.ssrc,
		},
		Payload: payload,
	}
	e.seq++
	e.timestamp += samples
	e.mu.Unlock()

	return track.WriteRTP(pkt)
}

func (e *Engine) payloadType() webrtc.PayloadType {
	for _, entry := range codecTable {
		if entry.capability.MimeType == e.capability.MimeType {
			return entry.payload
		}
	}
	return 0
}

// SendDTMF sends digit as an RFC 4733 event. Muting does not suppress DTMF.
func (e *Engine) SendDTMF(digit rune) error {
	event, err := EventForDigit(digit)
	if err != nil {
		return err
	}

	e.mu.Lock()
	track := e.localTrack
	if track == nil {
		e.mu.Unlock()
		return ErrNoLocalTrack
	}
	if e.held {
		e.mu.Unlock()
		return nil
	}
	packets := eventPackets(event, e.config.DTMFDuration, e.ssrc, e.seq, e.timestamp)
	e.seq += uint16(len(packets))
	e.timestamp += uint32(dtmfClockRate * e.config.DTMFDuration / time.Second)
	e.mu.Unlock()

	for _, pkt := range packets {
		if err := track.WriteRTP(pkt); err != nil {
			return fmt.Errorf("failed to write DTMF %q: %w", digit, err)
		}
	}
	return nil
}

// IsConnected reports whether the PeerConnection is connected.
func (e *Engine) IsConnected() bool {
	return e.peerConnection.ConnectionState() == webrtc.PeerConnectionStateConnected
}

// ConnectionState returns the current peer connection state
func (e *Engine) ConnectionState() webrtc.PeerConnectionState {
	return e.peerConnection.ConnectionState()
}

// RemoteTrack returns the remote track once one arrived
func (e *Engine) RemoteTrack() *webrtc.TrackRemote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remoteTrack
}

// Close closes the peer connection and releases resources
func (e *Engine) Close() error {
	if err := e.peerConnection.Close(); err != nil {
		return fmt.Errorf("failed to close peer connection: %w", err)
	}
	return nil
}
