/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/automat-berlin/afone/calling"
	"github.com/automat-berlin/afone/phonesdk"
)

// ErrNoSubscriptions is returned by Send without subscriptions.
var ErrNoSubscriptions = errors.New("notify: no web push subscriptions")

// Subscription is a browser push subscription.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// WebPushConfig holds configuration for the WebPushNotifier
type WebPushConfig struct {
	// Subject identifies the sender to push services, a mailto: or https: URL.
	Subject string

	// VAPID key pair. Generated when both are empty.
	VAPIDPublicKey  string
	VAPIDPrivateKey string

	TTL     int           // Seconds the push service keeps an undelivered message
	Delay   time.Duration // Delay before NotifyRejectedCall sends
	Timeout time.Duration // Per-send timeout

	// HTTPClient sends the requests. If nil, http.DefaultClient is used.
	HTTPClient webpush.HTTPClient

	// Logger for send failures. If nil, the phonesdk default logger is used.
	Logger phonesdk.Logger
}

// DefaultWebPushConfig returns a WebPushConfig with sensible defaults
func DefaultWebPushConfig() *WebPushConfig {
	return &WebPushConfig{
		Subject: "mailto:softphone@automat.berlin",
		TTL:     30,
		Delay:   time.Second,
		Timeout: 10 * time.Second,
	}
}

// WebPushNotifier delivers notifications to browser subscriptions.
type WebPushNotifier struct {
	mu            sync.RWMutex
	config        *WebPushConfig
	logger        phonesdk.Logger
	subscriptions map[string]Subscription
}

// NewWebPushNotifier creates a WebPushNotifier, generating VAPID keys when
// the config has none.
func NewWebPushNotifier(config *WebPushConfig) (*WebPushNotifier, error) {
	if config == nil {
		config = DefaultWebPushConfig()
	}
	if config.VAPIDPublicKey == "" && config.VAPIDPrivateKey == "" {
		private, public, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return nil, fmt.Errorf("failed to generate VAPID keys: %w", err)
		}
		config.VAPIDPrivateKey, config.VAPIDPublicKey = private, public
	}
	if config.VAPIDPublicKey == "" || config.VAPIDPrivateKey == "" {
		return nil, errors.New("notify: incomplete VAPID key pair")
	}
	return &WebPushNotifier{
		config:        config,
		logger:        phonesdk.OrDefault(config.Logger),
		subscriptions: make(map[string]Subscription),
	}, nil
}

// PublicKey returns the VAPID public key browsers subscribe with.
func (n *WebPushNotifier) PublicKey() string {
	return n.config.VAPIDPublicKey
}

// Subscribe adds or replaces the subscription for its endpoint.
func (n *WebPushNotifier) Subscribe(sub Subscription) error {
	if sub.Endpoint == "" || sub.P256dh == "" || sub.Auth == "" {
		return errors.New("notify: subscription needs endpoint, p256dh and auth")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscriptions[sub.Endpoint] = sub
	return nil
}

func (n *WebPushNotifier) Unsubscribe(endpoint string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subscriptions, endpoint)
}

// Subscriptions returns the number of subscriptions
func (n *WebPushNotifier) Subscriptions() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscriptions)
}

// NotifyRejectedCall sends the rejected-call notification after
// WebPushConfig.Delay without blocking the caller.
func (n *WebPushNotifier) NotifyRejectedCall(call *calling.Call) {
	note := RejectedCall(call)
	send := func() {
		if err := n.Send(context.Background(), note); err != nil {
			n.logger.Printf("notify: %s: %v", note.ID, err)
		}
	}
	if n.config.Delay <= 0 {
		go send()
		return
	}
	time.AfterFunc(n.config.Delay, send)
}

// Send delivers note to every subscription. Subscriptions the push service
// reports as gone are dropped.
func (n *WebPushNotifier) Send(ctx context.Context, note Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	n.mu.RLock()
	subs := make([]Subscription, 0, len(n.subscriptions))
	for _, s := range n.subscriptions {
		subs = append(subs, s)
	}
	n.mu.RUnlock()
	if len(subs) == 0 {
		return ErrNoSubscriptions
	}

	var errs []error
	for _, sub := range subs {
		if err := n.sendOne(ctx, payload, sub); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *WebPushNotifier) sendOne(ctx context.Context, payload []byte, sub Subscription) error {
	if n.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.config.Timeout)
		defer cancel()
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      n.config.HTTPClient,
		Subscriber:      n.config.Subject,
		VAPIDPublicKey:  n.config.VAPIDPublicKey,
		VAPIDPrivateKey: n.config.VAPIDPrivateKey,
		TTL:             n.config.TTL,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("failed to push to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		n.Unsubscribe(sub.Endpoint)
		return fmt.Errorf("subscription %s is gone: %d", sub.Endpoint, resp.StatusCode)
	case resp.StatusCode >= 300:
		return fmt.Errorf("push service rejected %s: %d", sub.Endpoint, resp.StatusCode)
	}
	return nil
}
