/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package twiliotrunk is a SignalingAdapter that places and controls calls
// through the Twilio Voice REST API. Each Twilio call leg is bridged to the
// softphone's SIP endpoint with TwiML. Progress arrives through the status
// callback and voice webhooks served by StatusHandler and VoiceHandler.
//
// Call-control verbs block on the REST request.
package twiliotrunk

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/automat-berlin/afone/calling"
	"github.com/automat-berlin/afone/media"
	"github.com/automat-berlin/afone/phonesdk"
	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	twilioopenapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Failure codes reported through calling.ActionFailedError when Twilio did
// not supply one.
const (
	CodeUnauthorized      = 401
	CodeForbidden         = 403
	CodeNotFound          = 404
	CodeNotSupported      = 405
	CodeAddressIncomplete = 484
	CodeBadGateway        = 502
)

// DefaultRingTimeout is how long an outgoing call rings, in seconds.
const DefaultRingTimeout = 30

// statusEvents are the progress events requested for outgoing calls.
var statusEvents = []string{"initiated", "ringing", "answered", "completed"}

var (
	// ErrNotRegistered is returned when the adapter is used before login.
	ErrNotRegistered = calling.NewActionFailed(CodeForbidden, "not registered")

	// ErrMuteUnsupported is returned by Mute. The Voice REST API cannot mute
	// a single leg.
	ErrMuteUnsupported = calling.NewActionFailed(CodeNotSupported, "mute is not supported by the voice API")

	errUnknownLeg = calling.NewActionFailed(CodeNotFound, "unknown call leg")
)

// CallService is the part of the Twilio v2010 API the adapter uses.
// *twilioopenapi.ApiService satisfies it.
type CallService interface {
	CreateCall(params *twilioopenapi.CreateCallParams) (*twilioopenapi.ApiV2010Call, error)
	UpdateCall(sid string, params *twilioopenapi.UpdateCallParams) (*twilioopenapi.ApiV2010Call, error)
}

// Config holds configuration for the Adapter
type Config struct {
	// CallerID is the Twilio number outgoing calls are placed from.
	CallerID string

	// StatusCallbackURL is where Twilio posts call progress. It must route
	// to StatusHandler.
	StatusCallbackURL string

	// HoldMusicURL is played to the remote party while on hold. Silence is
	// used when empty.
	HoldMusicURL string

	// RingTimeout is how long Twilio lets an outgoing call ring, in seconds.
	RingTimeout int

	// NewService builds the REST client from the login credentials. Login is
	// the account SID and Password the auth token. If nil the twilio-go
	// client is used.
	NewService func(credentials calling.Credentials) CallService

	// Logger for adapter diagnostics. If nil, the phonesdk default logger is used.
	Logger phonesdk.Logger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		RingTimeout: DefaultRingTimeout,
		NewService:  restService,
	}
}

func restService(credentials calling.Credentials) CallService {
	c := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: credentials.Login,
		Password: credentials.Password,
	})
	return c.Api
}

type leg struct {
	sid      string
	session  int
	call     *calling.Call
	incoming bool
	answered bool
}

// Adapter implements calling.SignalingAdapter and calling.PushHandler.
type Adapter struct {
	mu      sync.RWMutex
	config  *Config
	logger  phonesdk.Logger
	orch    *calling.Orchestrator
	service CallService

	credentials calling.Credentials
	settings    calling.Settings
	registered  bool
	background  bool
	audioActive bool

	nextSession int
	legs        map[int]*leg
	bySid       map[string]*leg
}

// New creates an Adapter that creates its calls for orch.
func New(orch *calling.Orchestrator, config *Config) *Adapter {
	if config == nil {
		config = DefaultConfig()
	}
	if config.NewService == nil {
		config.NewService = restService
	}
	if config.RingTimeout <= 0 {
		config.RingTimeout = DefaultRingTimeout
	}
	return &Adapter{
		config:      config,
		logger:      phonesdk.OrDefault(config.Logger),
		orch:        orch,
		nextSession: 1,
		legs:        make(map[int]*leg),
		bySid:       make(map[string]*leg),
	}
}

// ---- Account lifecycle ----

func (a *Adapter) InitAdapter(credentials calling.Credentials, done func(error)) {
	if err := credentials.Validate(); err != nil {
		complete(done, calling.NewActionFailed(CodeUnauthorized, err.Error()))
		return
	}
	if credentials.Password == "" {
		complete(done, calling.NewActionFailed(CodeUnauthorized, "auth token is required"))
		return
	}

	service := a.config.NewService(credentials)

	a.mu.Lock()
	a.credentials = credentials
	a.service = service
	a.registered = true
	a.mu.Unlock()

	a.logger.Printf("twiliotrunk: account %s bridged to %s", credentials.Login, a.endpoint())
	complete(done, nil)
}

// CancelLogin has nothing to cancel; InitAdapter completes synchronously.
func (a *Adapter) CancelLogin() {}

// Reload keeps the settings. Only the G.711 codecs reach the PSTN; others
// are dropped with a log line.
func (a *Adapter) Reload(settings calling.Settings) {
	known := settings.Clone()
	known.AudioCodecs = nil
	for _, codec := range settings.AudioCodecs {
		if !isG711(codec) {
			a.logger.Printf("twiliotrunk: ignoring unsupported codec %s/%s", codec.Type, codec.Name)
			continue
		}
		known.AudioCodecs = append(known.AudioCodecs, codec)
	}
	known.VideoCodecs = nil
	known.VideoEnabled = false

	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = known
}

// Settings returns the settings in effect
func (a *Adapter) Settings() calling.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.Clone()
}

// Logout completes every open leg and unregisters.
func (a *Adapter) Logout(done func()) {
	a.mu.Lock()
	legs := make([]*leg, 0, len(a.legs))
	for _, l := range a.legs {
		legs = append(legs, l)
	}
	a.legs = make(map[int]*leg)
	a.bySid = make(map[string]*leg)
	service := a.service
	a.registered = false
	a.mu.Unlock()

	for _, l := range legs {
		if service != nil {
			if _, err := service.UpdateCall(l.sid, a.statusParams("completed")); err != nil {
				a.logger.Printf("twiliotrunk: completing %s on logout: %v", l.sid, err)
			}
		}
		l.call.SetState(calling.CallStateTerminated)
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

// endpoint is the SIP URI of the softphone that legs are bridged to.
func (a *Adapter) endpoint() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return fmt.Sprintf("sip:%s@%s", a.credentials.Login, a.credentials.SIPServer)
}

// ---- Legs ----

func (a *Adapter) addLeg(sid string, call *calling.Call, incoming bool) (*leg, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.bySid[sid]; ok {
		return nil, fmt.Errorf("call %s is already known", sid)
	}
	l := &leg{sid: sid, session: a.nextSession, call: call, incoming: incoming}
	a.nextSession++
	a.legs[l.session] = l
	a.bySid[sid] = l
	return l, nil
}

func (a *Adapter) leg(session int) (*leg, CallService, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.registered {
		return nil, nil, ErrNotRegistered
	}
	l, ok := a.legs[session]
	if !ok {
		return nil, nil, errUnknownLeg
	}
	return l, a.service, nil
}

func (a *Adapter) legBySid(sid string) (*leg, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	l, ok := a.bySid[sid]
	return l, ok
}

func (a *Adapter) removeLeg(session int) (*leg, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.legs[session]
	if ok {
		delete(a.legs, session)
		delete(a.bySid, l.sid)
	}
	return l, ok
}

// CallSid returns the Twilio call SID of session
func (a *Adapter) CallSid(session int) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	l, ok := a.legs[session]
	if !ok {
		return "", false
	}
	return l.sid, true
}

// ActiveSessions returns the number of open legs
func (a *Adapter) ActiveSessions() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.legs)
}

// ---- Call control ----

func (a *Adapter) statusParams(status string) *twilioopenapi.UpdateCallParams {
	params := &twilioopenapi.UpdateCallParams{}
	params.SetStatus(status)
	a.mu.RLock()
	if a.credentials.Login != "" {
		params.SetPathAccountSid(a.credentials.Login)
	}
	a.mu.RUnlock()
	return params
}

func (a *Adapter) twimlParams(verbs ...any) (*twilioopenapi.UpdateCallParams, error) {
	doc, err := render(verbs...)
	if err != nil {
		return nil, err
	}
	params := &twilioopenapi.UpdateCallParams{}
	params.SetTwiml(doc)
	a.mu.RLock()
	if a.credentials.Login != "" {
		params.SetPathAccountSid(a.credentials.Login)
	}
	a.mu.RUnlock()
	return params, nil
}

// update runs one UpdateCall against the leg of session.
func (a *Adapter) update(session int, params func() (*twilioopenapi.UpdateCallParams, error)) (*leg, error) {
	l, service, err := a.leg(session)
	if err != nil {
		return nil, err
	}
	p, err := params()
	if err != nil {
		return nil, err
	}
	if _, err := service.UpdateCall(l.sid, p); err != nil {
		return nil, restError(err)
	}
	return l, nil
}

// AnswerCall bridges the incoming leg to the softphone endpoint.
func (a *Adapter) AnswerCall(session int, video bool, done func(error)) {
	l, err := a.update(session, func() (*twilioopenapi.UpdateCallParams, error) {
		return a.twimlParams(bridgeTo(a.endpoint()))
	})
	if err != nil {
		complete(done, err)
		return
	}

	a.mu.Lock()
	l.answered = true
	a.mu.Unlock()

	l.call.SetExistsAudio(true)
	a.orch.DidAnswerCall(l.call)
	complete(done, nil)
}

func (a *Adapter) HangUp(session int, done func(error)) {
	if _, err := a.update(session, func() (*twilioopenapi.UpdateCallParams, error) {
		return a.statusParams("completed"), nil
	}); err != nil {
		complete(done, err)
		return
	}
	a.removeLeg(session)
	complete(done, nil)
}

// RejectCall ends a leg that was never bridged. Twilio has already picked
// up the inbound call to play the waiting TwiML, so the code is only logged.
func (a *Adapter) RejectCall(session int, code int, done func(error)) {
	l, err := a.update(session, func() (*twilioopenapi.UpdateCallParams, error) {
		return a.statusParams("completed"), nil
	})
	if err != nil {
		complete(done, err)
		return
	}
	a.removeLeg(session)
	a.logger.Printf("twiliotrunk: rejected %s with %d", l.sid, code)
	complete(done, nil)
}

func (a *Adapter) Hold(session int, done func(error)) {
	_, err := a.update(session, func() (*twilioopenapi.UpdateCallParams, error) {
		return a.twimlParams(a.holdVerb())
	})
	complete(done, err)
}

func (a *Adapter) Unhold(session int, done func(error)) {
	_, err := a.update(session, func() (*twilioopenapi.UpdateCallParams, error) {
		return a.twimlParams(bridgeTo(a.endpoint()))
	})
	complete(done, err)
}

func (a *Adapter) holdVerb() any {
	if a.config.HoldMusicURL != "" {
		return playVerb{URL: a.config.HoldMusicURL, Loop: "0"}
	}
	return pauseVerb{Length: 3600}
}

func (a *Adapter) Mute(session int, mute bool, done func(error)) {
	if _, _, err := a.leg(session); err != nil {
		complete(done, err)
		return
	}
	complete(done, ErrMuteUnsupported)
}

// SendDTMF plays the digit to the remote party and bridges the leg again.
func (a *Adapter) SendDTMF(session int, digit rune) {
	if _, err := media.EventForDigit(digit); err != nil {
		a.logger.Printf("twiliotrunk: DTMF %q dropped: %v", digit, err)
		return
	}
	if _, err := a.update(session, func() (*twilioopenapi.UpdateCallParams, error) {
		return a.twimlParams(playVerb{Digits: string(digit)}, bridgeTo(a.endpoint()))
	}); err != nil {
		a.logger.Printf("twiliotrunk: DTMF %q failed: %v", digit, err)
	}
}

// CreateCall places an outgoing call that is bridged to the softphone
// once answered. The call starts initialized; StatusHandler moves it on.
func (a *Adapter) CreateCall(to string, video bool, done func(*calling.Call, error)) {
	a.mu.RLock()
	registered, service, account := a.registered, a.service, a.credentials.Login
	a.mu.RUnlock()
	if !registered {
		done(nil, ErrNotRegistered)
		return
	}
	to = strings.TrimSpace(to)
	if to == "" {
		done(nil, calling.NewActionFailed(CodeAddressIncomplete, "Address Incomplete"))
		return
	}

	doc, err := render(bridgeTo(a.endpoint()))
	if err != nil {
		done(nil, err)
		return
	}
	params := &twilioopenapi.CreateCallParams{}
	params.SetPathAccountSid(account)
	params.SetTo(to)
	params.SetFrom(a.config.CallerID)
	params.SetTwiml(doc)
	params.SetTimeout(a.config.RingTimeout)
	if a.config.StatusCallbackURL != "" {
		params.SetStatusCallback(a.config.StatusCallbackURL)
		params.SetStatusCallbackMethod("POST")
		params.SetStatusCallbackEvent(statusEvents)
	}

	resp, err := service.CreateCall(params)
	if err != nil {
		done(nil, restError(err))
		return
	}
	if resp == nil || resp.Sid == nil {
		done(nil, calling.NewActionFailed(CodeBadGateway, "create call returned no SID"))
		return
	}

	call := calling.NewCall(a.orch)
	l, err := a.addLeg(*resp.Sid, call, false)
	if err != nil {
		done(nil, err)
		return
	}
	call.SetCallee(to)
	call.SetSession(l.session)
	call.SetState(calling.CallStateInitialized)
	done(call, nil)
}

func (a *Adapter) StartAudio() { a.setAudio(true) }
func (a *Adapter) StopAudio()  { a.setAudio(false) }

func (a *Adapter) setAudio(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audioActive = active
}

// AudioActive reports whether StartAudio was called last
func (a *Adapter) AudioActive() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.audioActive
}

// ---- Capabilities ----

// AudioCodecs returns the G.711 codecs the PSTN carries.
func (a *Adapter) AudioCodecs() []calling.Codec {
	var out []calling.Codec
	for _, c := range media.AudioCodecs() {
		if isG711(c) {
			out = append(out, c)
		}
	}
	return out
}

func (a *Adapter) VideoCodecs() []calling.Codec      { return nil }
func (a *Adapter) SRTPOptions() []calling.SRTPOption { return media.SRTPOptions() }
func (a *Adapter) SupportsVideo() bool               { return false }
func (a *Adapter) NeedsCodecs() bool                 { return false }
func (a *Adapter) LocalVideoView() calling.VideoView { return nil }

func (a *Adapter) RemoteVideoView() calling.VideoView { return nil }

func isG711(c calling.Codec) bool {
	return c.Type == calling.CodecTypeAudio && (strings.EqualFold(c.Name, "PCMU") || strings.EqualFold(c.Name, "PCMA"))
}

// ---- Push ----

// PushPayload is the JSON body of a push announcing an inbound Twilio call.
type PushPayload struct {
	CallSid    string `json:"callSid"`
	From       string `json:"from"`
	CallerName string `json:"callerName,omitempty"`
}

// HandlePushPayload turns a push payload into an incoming call.
func (a *Adapter) HandlePushPayload(payload []byte) {
	var p PushPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		a.logger.Printf("twiliotrunk: invalid push payload: %v", err)
		return
	}
	if p.CallSid == "" || p.From == "" {
		a.logger.Printf("twiliotrunk: push payload without call SID or caller")
		return
	}
	if _, err := a.Incoming(p.CallSid, p.From, p.CallerName); err != nil {
		a.logger.Printf("twiliotrunk: push call %s dropped: %v", p.CallSid, err)
	}
}

// restError maps a Twilio REST error onto calling.ActionFailedError.
func restError(err error) error {
	var restErr *client.TwilioRestError
	if errors.As(err, &restErr) {
		code := restErr.Status
		if code == 0 {
			code = CodeBadGateway
		}
		return calling.NewActionFailed(code, restErr.Message)
	}
	return calling.NewActionFailed(CodeBadGateway, err.Error())
}

func complete(done func(error), err error) {
	if done != nil {
		done(err)
	}
}
