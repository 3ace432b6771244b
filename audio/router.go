/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package audio applies audio-session profiles for calls and routes output
// between speaker and earpiece.
package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/automat-berlin/afone/phonesdk"
)

// Profile names an audio-session configuration
type Profile string

const (
	ProfileIdle  Profile = "idle"
	ProfileVoice Profile = "voice"
	ProfileVideo Profile = "video"
)

// Category is the audio-session category
type Category string

const (
	CategoryAmbient       Category = "ambient"
	CategoryPlayAndRecord Category = "playAndRecord"
)

// Mode is the audio-session mode
type Mode string

const (
	ModeDefault   Mode = "default"
	ModeVoiceChat Mode = "voiceChat"
	ModeVideoChat Mode = "videoChat"
)

// Port is an output port override
type Port string

const (
	PortNone    Port = "none"
	PortSpeaker Port = "speaker"
)

// Session is the platform audio session the router configures.
type Session interface {
	SetCategory(category Category, mode Mode) error
	SetPreferredIOBufferDuration(d time.Duration) error
	SetPreferredSampleRate(rate float64) error
	SetActive(active bool) error
	OverrideOutputPort(port Port) error
}

// ProfileConfig is the session configuration applied for one profile. A zero
// buffer duration or sample rate leaves the preference untouched.
type ProfileConfig struct {
	Category       Category
	Mode           Mode
	BufferDuration time.Duration
	SampleRate     float64
	Activate       bool
}

// Config holds configuration for the Router
type Config struct {
	Profiles map[Profile]ProfileConfig

	// Logger receives configuration failures. If nil, the phonesdk default
	// logger is used.
	Logger phonesdk.Logger
}

// DefaultConfig returns the profile table used for calls
func DefaultConfig() *Config {
	return &Config{
		Profiles: map[Profile]ProfileConfig{
			ProfileIdle: {
				Category: CategoryAmbient,
				Mode:     ModeDefault,
			},
			ProfileVoice: {
				Category:       CategoryPlayAndRecord,
				Mode:           ModeVoiceChat,
				BufferDuration: 5 * time.Millisecond,
				SampleRate:     44100,
				Activate:       true,
			},
			ProfileVideo: {
				Category:       CategoryPlayAndRecord,
				Mode:           ModeVideoChat,
				BufferDuration: 5 * time.Millisecond,
				SampleRate:     44100,
				Activate:       true,
			},
		},
	}
}

// Router applies profiles to a Session. Every operation is synchronous and
// best-effort: failures are logged and never returned, so audio problems
// cannot block call progress.
type Router struct {
	mu      sync.Mutex
	session Session
	config  *Config
	logger  phonesdk.Logger
	profile Profile
	output  Port
}

// NewRouter creates a Router for session
func NewRouter(session Session, config *Config) *Router {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Profiles == nil {
		config.Profiles = DefaultConfig().Profiles
	}
	return &Router{
		session: session,
		config:  config,
		logger:  phonesdk.OrDefault(config.Logger),
		profile: ProfileIdle,
		output:  PortNone,
	}
}

// Profile returns the last applied profile
func (r *Router) Profile() Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profile
}

// Output returns the last applied output override
func (r *Router) Output() Port {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output
}

// Apply switches the session to profile.
func (r *Router) Apply(profile Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apply(profile)
}

// Restore switches back to the idle profile.
func (r *Router) Restore() {
	r.Apply(ProfileIdle)
}

// RouteToSpeaker applies the video profile and overrides output to the speaker.
func (r *Router) RouteToSpeaker() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apply(ProfileVideo)
	r.override(PortSpeaker)
}

// RouteToEarpiece applies the voice profile and removes the output override.
func (r *Router) RouteToEarpiece() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apply(ProfileVoice)
	r.override(PortNone)
}

func (r *Router) apply(profile Profile) {
	cfg, ok := r.config.Profiles[profile]
	if !ok {
		r.logger.Printf("audio: unknown profile %q", profile)
		return
	}
	r.profile = profile
	if r.session == nil {
		return
	}

	r.logError(profile, "category", r.session.SetCategory(cfg.Category, cfg.Mode))
	if cfg.BufferDuration > 0 {
		r.logError(profile, "buffer duration", r.session.SetPreferredIOBufferDuration(cfg.BufferDuration))
	}
	if cfg.SampleRate > 0 {
		r.logError(profile, "sample rate", r.session.SetPreferredSampleRate(cfg.SampleRate))
	}
	if cfg.Activate {
		r.logError(profile, "activation", r.session.SetActive(true))
	}
}

func (r *Router) override(port Port) {
	r.output = port
	if r.session == nil {
		return
	}
	if err := r.session.OverrideOutputPort(port); err != nil {
		r.logger.Printf("audio: override output to %s failed: %v", port, err)
	}
}

func (r *Router) logError(profile Profile, step string, err error) {
	if err != nil {
		r.logger.Printf("audio: %s profile: %s failed: %v", profile, step, err)
	}
}

// MemorySession is a Session that only records what was applied. It serves
// hosts without a platform audio session and tests.
type MemorySession struct {
	mu             sync.Mutex
	Category       Category
	Mode           Mode
	BufferDuration time.Duration
	SampleRate     float64
	Active         bool
	Output         Port
	// Fail makes every setter return an error.
	Fail bool
}

func (m *MemorySession) fail(step string) error {
	if m.Fail {
		return fmt.Errorf("%s rejected", step)
	}
	return nil
}

func (m *MemorySession) SetCategory(category Category, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("category"); err != nil {
		return err
	}
	m.Category, m.Mode = category, mode
	return nil
}

func (m *MemorySession) SetPreferredIOBufferDuration(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("buffer duration"); err != nil {
		return err
	}
	m.BufferDuration = d
	return nil
}

func (m *MemorySession) SetPreferredSampleRate(rate float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("sample rate"); err != nil {
		return err
	}
	m.SampleRate = rate
	return nil
}

func (m *MemorySession) SetActive(active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("activation"); err != nil {
		return err
	}
	m.Active = active
	return nil
}

func (m *MemorySession) OverrideOutputPort(port Port) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("override"); err != nil {
		return err
	}
	m.Output = port
	return nil
}
