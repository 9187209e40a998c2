package notify

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quranvideo/config"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func browserKeys(t *testing.T) Keys {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return Keys{
		P256dh: base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		Auth:   base64.RawURLEncoding.EncodeToString(auth),
	}
}

func TestNewSenderWithoutKeysIsNoop(t *testing.T) {
	s := NewSender(&config.Config{})
	assert.IsType(t, noopSender{}, s)
	assert.NoError(t, s.Send(context.Background(), Subscription{}, CompletedPayload))
}

func TestWebPushSender(t *testing.T) {
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	var gotAuth, gotTTL string
	var status = http.StatusCreated
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTTL = r.Header.Get("TTL")
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := NewSender(&config.Config{
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		VAPIDSubject:    "ops@example.com",
	})
	sub := Subscription{Endpoint: srv.URL + "/push/abc", Keys: browserKeys(t)}

	require.NoError(t, s.Send(context.Background(), sub, CompletedPayload))
	assert.True(t, strings.HasPrefix(gotAuth, "vapid "), gotAuth)
	assert.Equal(t, "60", gotTTL)

	status = http.StatusGone
	assert.Error(t, s.Send(context.Background(), sub, CompletedPayload))
}

func TestMemorySubscriptions(t *testing.T) {
	m := NewMemorySubscriptions()
	m.Put("req", Subscription{Endpoint: "https://push.example/1"})
	m.Put("req", Subscription{Endpoint: "https://push.example/2"})

	sub, ok := m.Take("req")
	require.True(t, ok)
	assert.Equal(t, "https://push.example/2", sub.Endpoint, "at most one subscription per id")

	_, ok = m.Take("req")
	assert.False(t, ok, "take removes the subscription")
}

func TestMemorySubscriptionsExpire(t *testing.T) {
	m := NewMemorySubscriptions()
	start := time.Now()
	m.now = func() time.Time { return start.Add(-2 * time.Hour) }
	m.Put("stale", Subscription{Endpoint: "https://push.example/stale"})
	m.now = func() time.Time { return start }
	m.Put("fresh", Subscription{Endpoint: "https://push.example/fresh"})

	assert.Equal(t, 1, m.Expire(start.Add(-time.Hour)))
	_, ok := m.Take("stale")
	assert.False(t, ok)
	_, ok = m.Take("fresh")
	assert.True(t, ok)
}
