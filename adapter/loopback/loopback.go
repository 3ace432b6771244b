/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package loopback is an in-process SignalingAdapter. The remote peer is
// driven through methods like Incoming, Ringing, Connected and Closed, which
// map SIP-style dialog events onto call states the same way a real SIP stack
// adapter does. Each dialog owns a media.Engine unless media is disabled.
package loopback

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/automat-berlin/afone/calling"
	"github.com/automat-berlin/afone/media"
	"github.com/automat-berlin/afone/phonesdk"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pion/webrtc/v4"
)

// SIP-style failure codes reported through calling.ActionFailedError.
const (
	CodeUnauthorized      = 401
	CodeForbidden         = 403
	CodeAddressIncomplete = 484
	CodeNoDialog          = 481
	CodeRequestTerminated = 487
	CodeNotAcceptable     = 488
)

var (
	// ErrNotRegistered is returned when the adapter is used before login.
	ErrNotRegistered = calling.NewActionFailed(CodeForbidden, "not registered")

	// ErrLoginCancelled completes a pending login aborted by CancelLogin.
	ErrLoginCancelled = calling.NewActionFailed(CodeRequestTerminated, "login cancelled")

	// ErrNoPendingLogin is returned by CompleteLogin without a pending login.
	ErrNoPendingLogin = errors.New("no pending login")

	// ErrMediaDisabled is returned by Offer when dialogs carry no media.
	ErrMediaDisabled = errors.New("media is disabled")
)

// Config holds configuration for the Adapter
type Config struct {
	// Accounts maps logins to passwords. When empty any valid credentials
	// are accepted.
	Accounts map[string]string

	// ManualLogin keeps InitAdapter pending until CompleteLogin or CancelLogin.
	ManualLogin bool

	// DisableMedia skips creating a media.Engine per dialog.
	DisableMedia bool

	// ICEServers replaces the servers derived from the credentials when
	// non-nil. An empty slice gathers host candidates only.
	ICEServers []webrtc.ICEServer

	// Logger for adapter diagnostics. If nil, the phonesdk default logger is used.
	Logger phonesdk.Logger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{}
}

type dialog struct {
	id       string
	session  int
	call     *calling.Call
	engine   *media.Engine
	talked   bool
	incoming bool
}

// Adapter implements calling.SignalingAdapter, calling.VideoController and
// calling.PushHandler.
type Adapter struct {
	mu     sync.RWMutex
	config *Config
	logger phonesdk.Logger
	orch   *calling.Orchestrator

	credentials  calling.Credentials
	settings     calling.Settings
	registered   bool
	pendingLogin func(error)
	background   bool
	audioActive  bool
	frontCamera  bool
	localVideo   bool
	remoteVideo  bool

	nextSession int
	dialogs     map[int]*dialog
	rejected    map[int]int
}

// New creates an Adapter that creates its calls for orch.
func New(orch *calling.Orchestrator, config *Config) *Adapter {
	if config == nil {
		config = DefaultConfig()
	}
	return &Adapter{
		config:      config,
		logger:      phonesdk.OrDefault(config.Logger),
		orch:        orch,
		frontCamera: true,
		localVideo:  true,
		remoteVideo: true,
		nextSession: 1,
		dialogs:     make(map[int]*dialog),
		rejected:    make(map[int]int),
	}
}

// ---- Account lifecycle ----

func (a *Adapter) InitAdapter(credentials calling.Credentials, done func(error)) {
	if err := a.authenticate(credentials); err != nil {
		a.logger.Printf("loopback: login of %s failed: %v", credentials.Login, err)
		complete(done, err)
		return
	}

	a.mu.Lock()
	a.credentials = credentials
	if a.config.ManualLogin {
		a.pendingLogin = done
		a.mu.Unlock()
		return
	}
	a.registered = true
	a.mu.Unlock()

	a.logger.Printf("loopback: registered %s at %s", credentials.Login, credentials.SIPServer)
	complete(done, nil)
}

func (a *Adapter) authenticate(credentials calling.Credentials) error {
	if err := credentials.Validate(); err != nil {
		return calling.NewActionFailed(CodeUnauthorized, err.Error())
	}
	if len(a.config.Accounts) == 0 {
		return nil
	}
	if password, ok := a.config.Accounts[credentials.Login]; !ok || password != credentials.Password {
		return calling.NewActionFailed(CodeUnauthorized, "Unauthorized")
	}
	return nil
}

// CompleteLogin finishes a login held back by Config.ManualLogin.
func (a *Adapter) CompleteLogin() error {
	a.mu.Lock()
	done := a.pendingLogin
	if done == nil {
		a.mu.Unlock()
		return ErrNoPendingLogin
	}
	a.pendingLogin = nil
	a.registered = true
	a.mu.Unlock()

	done(nil)
	return nil
}

func (a *Adapter) CancelLogin() {
	a.mu.Lock()
	done := a.pendingLogin
	a.pendingLogin = nil
	a.mu.Unlock()

	if done != nil {
		done(ErrLoginCancelled)
	}
}

// Reload applies settings. Codecs the media engine cannot register are
// dropped with a log line.
func (a *Adapter) Reload(settings calling.Settings) {
	known := settings.Clone()
	known.AudioCodecs = supported(settings.AudioCodecs, media.AudioCodecs(), a.logger)
	known.VideoCodecs = supported(settings.VideoCodecs, media.VideoCodecs(), a.logger)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = known
}

func supported(selected, available []calling.Codec, logger phonesdk.Logger) []calling.Codec {
	var out []calling.Codec
	for _, codec := range selected {
		found := false
		for _, c := range available {
			if c.Equal(codec) {
				found = true
				break
			}
		}
		if !found {
			logger.Printf("loopback: ignoring unsupported codec %s/%s", codec.Type, codec.Name)
			continue
		}
		out = append(out, codec)
	}
	return out
}

// Settings returns the settings in effect
func (a *Adapter) Settings() calling.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.Clone()
}

// Logout ends every dialog and unregisters.
func (a *Adapter) Logout(done func()) {
	a.mu.Lock()
	dialogs := make([]*dialog, 0, len(a.dialogs))
	for _, d := range a.dialogs {
		dialogs = append(dialogs, d)
	}
	a.dialogs = make(map[int]*dialog)
	a.registered = false
	a.mu.Unlock()

	for _, d := range dialogs {
		a.closeMedia(d)
		d.call.SetState(calling.CallStateTerminated)
	}
	if done != nil {
		done()
	}
}

// IsRegistered reports whether login completed
func (a *Adapter) IsRegistered() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registered
}

func (a *Adapter) DidEnterBackground() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.background = true
}

func (a *Adapter) WillEnterForeground() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.background = false
}

// InBackground reports whether the host is in the background
func (a *Adapter) InBackground() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.background
}

// ---- Dialogs ----

func (a *Adapter) newDialog(call *calling.Call, incoming bool) (*dialog, error) {
	id, err := gonanoid.New(16)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialog id: %w", err)
	}

	var engine *media.Engine
	if !a.config.DisableMedia {
		a.mu.RLock()
		config := media.ConfigFor(a.credentials, a.settings)
		a.mu.RUnlock()
		config.Logger = a.logger
		if a.config.ICEServers != nil {
			config.ICEServers = a.config.ICEServers
		}

		engine, err = media.NewEngine(config)
		if err != nil {
			return nil, err
		}
		if _, err := engine.AddAudioTrack(); err != nil {
			engine.Close()
			return nil, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	d := &dialog{id: id, session: a.nextSession, call: call, engine: engine, incoming: incoming}
	a.nextSession++
	a.dialogs[d.session] = d
	if engine != nil {
		engine.OnRemoteTrack(func(track *webrtc.TrackRemote) {
			if track.Kind() == webrtc.RTPCodecTypeVideo {
				call.SetReceivingVideo(true)
			}
		})
		if a.audioActive {
			engine.Start()
		}
	}
	return d, nil
}

func (a *Adapter) dialog(session int) (*dialog, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	d, ok := a.dialogs[session]
	if !ok {
		return nil, calling.NewActionFailed(CodeNoDialog, "Call/Transaction Does Not Exist")
	}
	return d, nil
}

func (a *Adapter) removeDialog(session int) (*dialog, bool) {
	a.mu.Lock()
	d, ok := a.dialogs[session]
	delete(a.dialogs, session)
	a.mu.Unlock()

	if ok {
		a.closeMedia(d)
	}
	return d, ok
}

func (a *Adapter) closeMedia(d *dialog) {
	if d.engine == nil {
		return
	}
	if err := d.engine.Close(); err != nil {
		a.logger.Printf("loopback: dialog %s: %v", d.id, err)
	}
}

// DialogID returns the dialog identifier of session
func (a *Adapter) DialogID(session int) (string, bool) {
	d, err := a.dialog(session)
	if err != nil {
		return "", false
	}
	return d.id, true
}

// Engine returns the media engine of session, if any
func (a *Adapter) Engine(session int) (*media.Engine, bool) {
	d, err := a.dialog(session)
	if err != nil || d.engine == nil {
		return nil, false
	}
	return d.engine, true
}

// ActiveSessions returns the number of open dialogs
func (a *Adapter) ActiveSessions() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.dialogs)
}

// RejectCode returns the code session was rejected with
func (a *Adapter) RejectCode(session int) (int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	code, ok := a.rejected[session]
	return code, ok
}

// ---- Call control ----

func (a *Adapter) AnswerCall(session int, video bool, done func(error)) {
	d, err := a.dialog(session)
	if err != nil {
		complete(done, err)
		return
	}
	d.call.SetSendingVideo(video && a.videoEnabled())
	complete(done, nil)
	a.Connected(session)
}

func (a *Adapter) HangUp(session int, done func(error)) {
	if _, ok := a.removeDialog(session); !ok {
		complete(done, calling.NewActionFailed(CodeNoDialog, "Call/Transaction Does Not Exist"))
		return
	}
	complete(done, nil)
}

func (a *Adapter) Hold(session int, done func(error)) {
	d, err := a.dialog(session)
	if err != nil {
		complete(done, err)
		return
	}
	if d.engine != nil {
		d.engine.SetHeld(true)
	}
	complete(done, nil)
}

func (a *Adapter) Unhold(session int, done func(error)) {
	d, err := a.dialog(session)
	if err != nil {
		complete(done, err)
		return
	}
	if d.engine != nil {
		d.engine.SetHeld(false)
	}
	complete(done, nil)
}

func (a *Adapter) Mute(session int, mute bool, done func(error)) {
	d, err := a.dialog(session)
	if err != nil {
		complete(done, err)
		return
	}
	if d.engine != nil {
		d.engine.SetMuted(mute)
	}
	complete(done, nil)
}

func (a *Adapter) RejectCall(session int, code int, done func(error)) {
	if _, ok := a.removeDialog(session); !ok {
		complete(done, calling.NewActionFailed(CodeNoDialog, "Call/Transaction Does Not Exist"))
		return
	}
	a.mu.Lock()
	a.rejected[session] = code
	a.mu.Unlock()
	complete(done, nil)
}

func (a *Adapter) SendDTMF(session int, digit rune) {
	d, err := a.dialog(session)
	if err != nil {
		a.logger.Printf("loopback: DTMF %q dropped: %v", digit, err)
		return
	}
	if d.engine == nil {
		return
	}
	if err := d.engine.SendDTMF(digit); err != nil {
		a.logger.Printf("loopback: DTMF %q on dialog %s failed: %v", digit, d.id, err)
	}
}

// CreateCall opens an outgoing dialog. The call starts initialized; the
// remote side moves it on with Trying, Ringing and Connected.
func (a *Adapter) CreateCall(to string, video bool, done func(*calling.Call, error)) {
	if !a.IsRegistered() {
		done(nil, ErrNotRegistered)
		return
	}
	if to == "" {
		done(nil, calling.NewActionFailed(CodeAddressIncomplete, "Address Incomplete"))
		return
	}

	call := calling.NewCall(a.orch)
	d, err := a.newDialog(call, false)
	if err != nil {
		done(nil, err)
		return
	}
	call.SetCallee(to)
	call.SetSession(d.session)
	call.SetSendingVideo(video && a.videoEnabled())
	call.SetState(calling.CallStateInitialized)
	done(call, nil)
}

func (a *Adapter) videoEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.VideoEnabled
}

// StartAudio starts outbound audio on every dialog.
func (a *Adapter) StartAudio() {
	a.setAudio(true)
}

func (a *Adapter) StopAudio() {
	a.setAudio(false)
}

func (a *Adapter) setAudio(active bool) {
	a.mu.Lock()
	a.audioActive = active
	engines := make([]*media.Engine, 0, len(a.dialogs))
	for _, d := range a.dialogs {
		if d.engine != nil {
			engines = append(engines, d.engine)
		}
	}
	a.mu.Unlock()

	for _, e := range engines {
		if active {
			e.Start()
		} else {
			e.Stop()
		}
	}
}

// AudioActive reports whether StartAudio was called last
func (a *Adapter) AudioActive() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.audioActive
}

// ---- Capabilities ----

func (a *Adapter) AudioCodecs() []calling.Codec      { return media.AudioCodecs() }
func (a *Adapter) VideoCodecs() []calling.Codec      { return media.VideoCodecs() }
func (a *Adapter) SRTPOptions() []calling.SRTPOption { return media.SRTPOptions() }
func (a *Adapter) SupportsVideo() bool               { return true }
func (a *Adapter) NeedsCodecs() bool                 { return true }

type streamView string

func (v streamView) StreamID() string { return string(v) }

// LocalVideoView returns a view of the first dialog sending video.
func (a *Adapter) LocalVideoView() calling.VideoView {
	return a.videoView(func(d *dialog) bool { return d.call.IsSendingVideo() }, "local")
}

// RemoteVideoView returns a view of the first dialog receiving video.
func (a *Adapter) RemoteVideoView() calling.VideoView {
	return a.videoView(func(d *dialog) bool { return d.call.IsReceivingVideo() }, "remote")
}

func (a *Adapter) videoView(match func(*dialog) bool, side string) calling.VideoView {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, d := range a.dialogs {
		if match(d) {
			return streamView(d.id + "-" + side)
		}
	}
	return nil
}

// ---- Video control ----

func (a *Adapter) EnableLocalVideo(enable bool, done func(bool)) {
	a.mu.Lock()
	a.localVideo = enable
	a.mu.Unlock()
	if done != nil {
		done(enable)
	}
}

func (a *Adapter) EnableRemoteVideo(enable bool, done func(bool)) {
	a.mu.Lock()
	a.remoteVideo = enable
	a.mu.Unlock()
	if done != nil {
		done(enable)
	}
}

func (a *Adapter) ToggleCameraPosition(done func(error)) {
	a.mu.Lock()
	a.frontCamera = !a.frontCamera
	a.mu.Unlock()
	complete(done, nil)
}

// FrontCamera reports whether the front camera is selected
func (a *Adapter) FrontCamera() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frontCamera
}

func (a *Adapter) UpdateCall(session int, video bool, done func(error)) {
	if _, err := a.dialog(session); err != nil {
		complete(done, err)
		return
	}
	if video && !a.videoEnabled() {
		complete(done, calling.ErrVideoUnsupported)
		return
	}
	complete(done, nil)
}

// ---- Push ----

// PushPayload is the JSON body of a push announcing an incoming call.
type PushPayload struct {
	From        string `json:"from"`
	DisplayName string `json:"displayName,omitempty"`
	Video       bool   `json:"video,omitempty"`
}

// HandlePushPayload turns a push payload into an incoming call.
func (a *Adapter) HandlePushPayload(payload []byte) {
	var p PushPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		a.logger.Printf("loopback: invalid push payload: %v", err)
		return
	}
	if p.From == "" {
		a.logger.Printf("loopback: push payload without caller")
		return
	}
	if _, err := a.Incoming(p.From, p.DisplayName, p.Video); err != nil {
		a.logger.Printf("loopback: push call from %s dropped: %v", p.From, err)
	}
}

func complete(done func(error), err error) {
	if done != nil {
		done(err)
	}
}
