package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"quranvideo/apperr"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(maxRetries int) *Client {
	log, _ := test.NewNullLogger()
	return &Client{
		http: &http.Client{Timeout: 5 * time.Second},
		policy: Policy{
			MaxRetries: maxRetries,
			BaseDelay:  time.Millisecond,
			MaxDelay:   4 * time.Millisecond,
			Multiplier: 2,
		},
		maxSize: 1 << 20,
		log:     log,
	}
}

func countingServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestDownload(t *testing.T) {
	t.Run("writes body to destination", func(t *testing.T) {
		srv, hits := countingServer(t, http.StatusOK, "mp3-bytes")
		dst := filepath.Join(t.TempDir(), "audio_1.mp3")

		err := testClient(3).Download(context.Background(), srv.URL, dst)
		require.NoError(t, err)

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "mp3-bytes", string(data))
		assert.EqualValues(t, 1, atomic.LoadInt32(hits))
	})

	t.Run("retries 5xx up to the limit", func(t *testing.T) {
		srv, hits := countingServer(t, http.StatusBadGateway, "nope")
		dst := filepath.Join(t.TempDir(), "audio_1.mp3")

		err := testClient(3).Download(context.Background(), srv.URL, dst)
		require.Error(t, err)
		assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
		assert.Contains(t, err.Error(), srv.URL)
		assert.EqualValues(t, 4, atomic.LoadInt32(hits), "one attempt plus three retries")
		assert.NoFileExists(t, dst)
	})

	t.Run("does not retry 404", func(t *testing.T) {
		srv, hits := countingServer(t, http.StatusNotFound, "missing")
		dst := filepath.Join(t.TempDir(), "audio_1.mp3")

		err := testClient(3).Download(context.Background(), srv.URL, dst)
		require.Error(t, err)
		assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
		assert.EqualValues(t, 1, atomic.LoadInt32(hits))
		assert.NoFileExists(t, dst)
	})

	t.Run("recovers after transient failure", func(t *testing.T) {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&hits, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("ok"))
		}))
		defer srv.Close()
		dst := filepath.Join(t.TempDir(), "bg.mp4")

		require.NoError(t, testClient(3).Download(context.Background(), srv.URL, dst))
		assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
		assert.FileExists(t, dst)
	})

	t.Run("retries network failures", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()
		dst := filepath.Join(t.TempDir(), "audio_1.mp3")

		err := testClient(2).Download(context.Background(), addr, dst)
		require.Error(t, err)
		assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
		assert.NoFileExists(t, dst)
	})

	t.Run("rejects oversized bodies without retry", func(t *testing.T) {
		srv, hits := countingServer(t, http.StatusOK, "0123456789")
		c := testClient(3)
		c.maxSize = 4
		dst := filepath.Join(t.TempDir(), "big.mp4")

		err := c.Download(context.Background(), srv.URL, dst)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds limit")
		assert.EqualValues(t, 1, atomic.LoadInt32(hits))
		assert.NoFileExists(t, dst)
	})
}

func TestGetJSON(t *testing.T) {
	srv, _ := countingServer(t, http.StatusOK, `{"code":200,"status":"OK"}`)

	var out struct {
		Code   int    `json:"code"`
		Status string `json:"status"`
	}
	require.NoError(t, testClient(1).GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, 200, out.Code)
	assert.Equal(t, "OK", out.Status)
}

func TestBackground(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "default_background.mp4")
	require.NoError(t, os.WriteFile(fallback, []byte("bundled"), 0o644))

	read := func(t *testing.T, path string) string {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		return string(data)
	}

	t.Run("default sentinel copies bundled clip", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "background.mp4")
		require.NoError(t, testClient(0).Background(context.Background(), "default", fallback, dst))
		assert.Equal(t, "bundled", read(t, dst))
	})

	t.Run("empty source copies bundled clip", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "background.mp4")
		require.NoError(t, testClient(0).Background(context.Background(), "", fallback, dst))
		assert.Equal(t, "bundled", read(t, dst))
	})

	t.Run("explicit source is downloaded", func(t *testing.T) {
		srv, _ := countingServer(t, http.StatusOK, "remote")
		dst := filepath.Join(t.TempDir(), "background.mp4")
		require.NoError(t, testClient(0).Background(context.Background(), srv.URL, fallback, dst))
		assert.Equal(t, "remote", read(t, dst))
	})

	t.Run("failed download falls back", func(t *testing.T) {
		srv, _ := countingServer(t, http.StatusForbidden, "")
		dst := filepath.Join(t.TempDir(), "background.mp4")
		require.NoError(t, testClient(1).Background(context.Background(), srv.URL, fallback, dst))
		assert.Equal(t, "bundled", read(t, dst))
	})

	t.Run("no usable source is a file error", func(t *testing.T) {
		srv, _ := countingServer(t, http.StatusInternalServerError, "")
		dst := filepath.Join(t.TempDir(), "background.mp4")
		missing := filepath.Join(t.TempDir(), "nope.mp4")

		err := testClient(1).Background(context.Background(), srv.URL, missing, dst)
		require.Error(t, err)
		assert.Equal(t, apperr.KindFile, apperr.KindOf(err))

		err = testClient(0).Background(context.Background(), "default", missing, dst)
		require.Error(t, err)
		assert.Equal(t, apperr.KindFile, apperr.KindOf(err))
	})
}
