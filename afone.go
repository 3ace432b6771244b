/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package afone wires the softphone together: the calling core, a signaling
// adapter, the native telephony bridge, audio routing and push delivery.
package afone

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/automat-berlin/afone/adapter/loopback"
	"github.com/automat-berlin/afone/audio"
	"github.com/automat-berlin/afone/calling"
	"github.com/automat-berlin/afone/notify"
	"github.com/automat-berlin/afone/phonesdk"
	"github.com/automat-berlin/afone/push"
	"github.com/automat-berlin/afone/telephony"
	"github.com/rs/zerolog"
)

// ErrNoCodecs is returned by Dial when the adapter needs codecs and the
// current settings select none.
var ErrNoCodecs = errors.New("afone: no codecs selected")

// AdapterFactory creates the signaling adapter for an orchestrator.
type AdapterFactory func(orch *calling.Orchestrator) calling.SignalingAdapter

// Config holds configuration for the Phone
type Config struct {
	Calling  *calling.Config
	Bridge   *telephony.Config
	Audio    *audio.Config
	Registry *push.RegistryConfig

	// NewAdapter creates the signaling adapter. If nil, a loopback adapter
	// is used.
	NewAdapter AdapterFactory

	// Provider and Controller are the native telephony stack. Both nil
	// selects an in-process telephony.Stack. A host-provided stack must be
	// given Phone.Bridge as its delegate.
	Provider   telephony.Provider
	Controller telephony.Controller

	Permissions  telephony.Permissions
	AudioSession audio.Session

	// Notifier shows rejected-call notifications. If nil, they are logged.
	Notifier telephony.Notifier

	// Settings are pushed to the adapter on every login.
	Settings calling.Settings

	// Logger is handed to every component config that has none. If nil, the
	// phonesdk default logger is used.
	Logger phonesdk.Logger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Calling:  calling.DefaultConfig(),
		Bridge:   telephony.DefaultConfig(),
		Audio:    audio.DefaultConfig(),
		Registry: &push.RegistryConfig{},
	}
}

// Phone is the top-level softphone
type Phone struct {
	mu sync.RWMutex

	config   *Config
	logger   phonesdk.Logger
	orch     *calling.Orchestrator
	adapter  calling.SignalingAdapter
	router   *audio.Router
	stack    *telephony.Stack
	bridge   *telephony.Bridge
	registry *push.Registry

	credentials calling.Credentials
	loggedIn    bool
}

// New creates a Phone with every component wired. Nothing talks to the
// network until Login.
func New(config *Config) (*Phone, error) {
	if config == nil {
		config = DefaultConfig()
	}
	// component constructors fill in the remaining defaults
	if config.Calling == nil {
		config.Calling = &calling.Config{}
	}
	if config.Bridge == nil {
		config.Bridge = &telephony.Config{}
	}
	if config.Audio == nil {
		config.Audio = &audio.Config{}
	}
	if config.Registry == nil {
		config.Registry = &push.RegistryConfig{}
	}
	if (config.Provider == nil) != (config.Controller == nil) {
		return nil, fmt.Errorf("provider and controller must be set together")
	}

	logger := phonesdk.OrDefault(config.Logger)
	if config.Calling.Logger == nil {
		config.Calling.Logger = logger
	}
	if config.Bridge.Logger == nil {
		config.Bridge.Logger = logger
	}
	if config.Audio.Logger == nil {
		config.Audio.Logger = logger
	}
	if config.Registry.Logger == nil {
		config.Registry.Logger = logger
	}

	p := &Phone{
		config: config,
		logger: logger,
		orch:   calling.NewOrchestrator(config.Calling),
		router: audio.NewRouter(config.AudioSession, config.Audio),
	}

	newAdapter := config.NewAdapter
	if newAdapter == nil {
		newAdapter = func(orch *calling.Orchestrator) calling.SignalingAdapter {
			return loopback.New(orch, &loopback.Config{Logger: logger})
		}
	}
	p.adapter = newAdapter(p.orch)
	if p.adapter == nil {
		return nil, fmt.Errorf("adapter factory returned nil")
	}
	p.orch.SetAdapter(p.adapter)
	p.orch.Reload(config.Settings)

	provider, controller := config.Provider, config.Controller
	if provider == nil {
		p.stack = telephony.NewStack(logger)
		provider, controller = p.stack, p.stack
	}

	notifier := config.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(notificationLogger(logger))
	}

	bridge, err := telephony.NewBridge(telephony.Dependencies{
		Orchestrator: p.orch,
		Provider:     provider,
		Controller:   controller,
		Router:       p.router,
		Permissions:  config.Permissions,
		Notifier:     notifier,
	}, config.Bridge)
	if err != nil {
		return nil, fmt.Errorf("failed to create telephony bridge: %w", err)
	}
	p.bridge = bridge
	if p.stack != nil {
		p.stack.SetDelegate(bridge)
	}

	registry, err := push.NewRegistry(config.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create push registry: %w", err)
	}
	registry.SetDelegate(p.orch)
	p.registry = registry

	return p, nil
}

func notificationLogger(logger phonesdk.Logger) zerolog.Logger {
	if zl, ok := logger.(*zerolog.Logger); ok {
		return *zl
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// ---- Accessors ----

func (p *Phone) Orchestrator() *calling.Orchestrator { return p.orch }
func (p *Phone) Adapter() calling.SignalingAdapter   { return p.adapter }
func (p *Phone) Bridge() *telephony.Bridge           { return p.bridge }
func (p *Phone) Router() *audio.Router               { return p.router }
func (p *Phone) Registry() *push.Registry            { return p.registry }

// Stack returns the in-process telephony stack, or nil when the host
// provided its own.
func (p *Phone) Stack() *telephony.Stack { return p.stack }

// ActiveCall returns the call owned by the bridge, or nil.
func (p *Phone) ActiveCall() *calling.Call { return p.bridge.ActiveCall() }

// ---- Account ----

// Login initializes the adapter with credentials. On success the
// credentials are kept for Credentials and the stored settings are pushed
// to the adapter.
func (p *Phone) Login(credentials calling.Credentials, done func(error)) {
	if err := credentials.Validate(); err != nil {
		if done != nil {
			done(fmt.Errorf("invalid credentials: %w", err))
		}
		return
	}
	p.orch.InitAdapter(credentials, func(err error) {
		if err == nil {
			p.mu.Lock()
			p.credentials = credentials
			p.loggedIn = true
			p.mu.Unlock()
		} else {
			p.logger.Printf("afone: login of %s failed: %v", credentials.Login, err)
		}
		if done != nil {
			done(err)
		}
	})
}

// CancelLogin aborts a pending Login.
func (p *Phone) CancelLogin() {
	p.orch.CancelLogin()
}

// Logout ends the active call and unregisters from the adapter.
func (p *Phone) Logout(done func()) {
	if p.bridge.ActiveCall() != nil {
		p.bridge.RequestEndCall(func(err error) {
			if err != nil {
				p.logger.Printf("afone: ending call on logout failed: %v", err)
			}
		})
	}
	p.orch.Logout(func() {
		p.mu.Lock()
		p.credentials = calling.Credentials{}
		p.loggedIn = false
		p.mu.Unlock()
		if done != nil {
			done()
		}
	})
}

// Credentials returns the credentials of the current login.
func (p *Phone) Credentials() (calling.Credentials, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.credentials, p.loggedIn
}

// ReloadSettings stores settings and pushes them to the adapter.
func (p *Phone) ReloadSettings(settings calling.Settings) {
	p.orch.Reload(settings)
}

func (p *Phone) Settings() calling.Settings {
	return p.orch.Settings()
}

func (p *Phone) DidEnterBackground() {
	p.orch.DidEnterBackground()
}

func (p *Phone) WillEnterForeground() {
	p.orch.WillEnterForeground()
}

// ---- Calls ----

// Dial starts an outgoing call through the native stack. It fails with
// ErrNoCodecs when the adapter needs codecs and none are selected.
func (p *Phone) Dial(to string, video bool, done func(error)) {
	if needs, ok := p.orch.NeedsCodecs(); ok && needs && !p.orch.Settings().HasCodecs() {
		if done != nil {
			done(ErrNoCodecs)
		}
		return
	}
	p.bridge.RequestCall(to, video, done)
}

func (p *Phone) Answer(done func(error)) {
	p.bridge.TriggerAnswer(done)
}

func (p *Phone) Hangup(done func(error)) {
	p.bridge.RequestEndCall(done)
}

func (p *Phone) ToggleMute(done func(error)) {
	p.bridge.TriggerMute(done)
}

func (p *Phone) ToggleHold(done func(error)) {
	p.bridge.TriggerHold(done)
}

func (p *Phone) SendDTMF(digits string, done func(error)) {
	p.bridge.TriggerDTMF(digits, done)
}

// SetSpeaker routes audio to the speaker or back to the earpiece and
// records the choice on the active call.
func (p *Phone) SetSpeaker(on bool) {
	if on {
		p.router.RouteToSpeaker()
	} else {
		p.router.RouteToEarpiece()
	}
	if call := p.bridge.ActiveCall(); call != nil {
		call.SetOnSpeaker(on)
	}
}

// ---- Push ----

// HandlePush delivers a push payload. It reaches the adapter through the
// registry, so payloads received before wiring completed are not lost.
func (p *Phone) HandlePush(payload []byte) {
	p.registry.Deliver(payload)
}
