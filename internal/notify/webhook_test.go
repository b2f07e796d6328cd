package notify

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSender_Text(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	s, err := NewWebhookSender(WebhookConfig{URL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)

	require.NoError(t, s.SendText(context.Background(), "hello"))
	assert.Equal(t, map[string]any{
		"msgtype": "text",
		"text":    map[string]any{"content": "hello"},
	}, got)
}

func TestWebhookSender_Image(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	var got webhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s, err := NewWebhookSender(WebhookConfig{URL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, s.SendImage(context.Background(), png))

	sum := md5.Sum(png)
	assert.Equal(t, "image", got.MsgType)
	require.NotNil(t, got.Image)
	assert.Equal(t, base64.StdEncoding.EncodeToString(png), got.Image.Base64)
	assert.Equal(t, hex.EncodeToString(sum[:]), got.Image.MD5)
	assert.Nil(t, got.Text)
}

func TestWebhookSender_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non-200", http.StatusInternalServerError, "oops"},
		{"api error", http.StatusOK, `{"errcode":45009,"errmsg":"api freq out of limit"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			s, err := NewWebhookSender(WebhookConfig{URL: srv.URL})
			require.NoError(t, err)
			assert.Error(t, s.SendText(context.Background(), "x"))
		})
	}
}

func TestNewWebhookSender_Key(t *testing.T) {
	s, err := NewWebhookSender(WebhookConfig{Key: "abc-123"})
	require.NoError(t, err)
	assert.Equal(t, "https://qyapi.weixin.qq.com/cgi-bin/webhook/send?key=abc-123", s.url)

	_, err = NewWebhookSender(WebhookConfig{})
	assert.Error(t, err)
}
