// Package notify delivers the best-effort "video ready" push and keeps the
// per-request push subscriptions until then.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"quranvideo/config"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Keys are the browser-generated push subscription keys.
type Keys struct {
	P256dh string `json:"p256dh" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

// Subscription is a browser push endpoint plus its keys.
type Subscription struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     Keys   `json:"keys" binding:"required"`
}

// Payload is what the service worker receives.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
}

// CompletedPayload is sent when a video finishes rendering.
var CompletedPayload = Payload{
	Title: "Video Generation Complete!",
	Body:  "Your Quran video is ready.",
	Icon:  "/icon.png",
}

// Sender pushes a payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub Subscription, payload Payload) error
}

// NewSender returns a VAPID web-push sender, or a noop sender when keys are
// not configured.
func NewSender(cfg *config.Config) Sender {
	if strings.TrimSpace(cfg.VAPIDPublicKey) == "" || strings.TrimSpace(cfg.VAPIDPrivateKey) == "" {
		return noopSender{}
	}
	return &webPushSender{
		subject:    cfg.VAPIDSubject,
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
	}
}

type noopSender struct{}

func (noopSender) Send(context.Context, Subscription, Payload) error { return nil }

type webPushSender struct {
	subject    string
	publicKey  string
	privateKey string
}

func (w *webPushSender) Send(ctx context.Context, sub Subscription, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}, &webpush.Options{
		Subscriber:      w.subject,
		VAPIDPublicKey:  w.publicKey,
		VAPIDPrivateKey: w.privateKey,
		TTL:             60,
	})
	if err != nil {
		return fmt.Errorf("web push: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("web push: push service answered %d", resp.StatusCode)
	}
	return nil
}

// Subscriptions holds at most one subscription per request id.
type Subscriptions interface {
	Put(requestID string, sub Subscription)
	// Take removes and returns the subscription for requestID.
	Take(requestID string) (Subscription, bool)
}

type MemorySubscriptions struct {
	mu   sync.Mutex
	subs map[string]storedSubscription
	now  func() time.Time
}

type storedSubscription struct {
	sub   Subscription
	added time.Time
}

func NewMemorySubscriptions() *MemorySubscriptions {
	return &MemorySubscriptions{subs: make(map[string]storedSubscription), now: time.Now}
}

func (m *MemorySubscriptions) Put(requestID string, sub Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[requestID] = storedSubscription{sub: sub, added: m.now()}
}

func (m *MemorySubscriptions) Take(requestID string) (Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[requestID]
	delete(m.subs, requestID)
	return s.sub, ok
}

// Expire drops subscriptions registered before cutoff whose request never
// reached a delivery attempt.
func (m *MemorySubscriptions) Expire(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.subs {
		if s.added.Before(cutoff) {
			delete(m.subs, id)
			n++
		}
	}
	return n
}
