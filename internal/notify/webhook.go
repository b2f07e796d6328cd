package notify

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"listing_watcher/internal/httpclient"
)

const weComWebhookBase = "https://qyapi.weixin.qq.com/cgi-bin/webhook/send?key="

type webhookMessage struct {
	MsgType string        `json:"msgtype"`
	Text    *webhookText  `json:"text,omitempty"`
	Image   *webhookImage `json:"image,omitempty"`
}

type webhookText struct {
	Content string `json:"content"`
}

type webhookImage struct {
	Base64 string `json:"base64"`
	MD5    string `json:"md5"`
}

// webhookResult is the body WeCom returns; other webhooks may return none.
type webhookResult struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// WebhookSender posts WeCom-style bot messages.
type WebhookSender struct {
	url    string
	client *http.Client
}

type WebhookConfig struct {
	URL      string
	Key      string // WeCom bot key, used when URL is empty
	Timeout  time.Duration
	ProxyURL string
}

func NewWebhookSender(cfg WebhookConfig) (*WebhookSender, error) {
	target := cfg.URL
	if target == "" {
		if cfg.Key == "" {
			return nil, errors.New("webhook url or key is required")
		}
		target = weComWebhookBase + url.QueryEscape(cfg.Key)
	}
	if _, err := url.ParseRequestURI(target); err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:  cfg.Timeout,
		ProxyURL: cfg.ProxyURL,
	})
	if err != nil {
		return nil, err
	}
	return &WebhookSender{url: target, client: client}, nil
}

func (s *WebhookSender) Name() string { return "webhook" }

func (s *WebhookSender) SendText(ctx context.Context, text string) error {
	return s.post(ctx, webhookMessage{
		MsgType: "text",
		Text:    &webhookText{Content: text},
	})
}

func (s *WebhookSender) SendImage(ctx context.Context, png []byte) error {
	sum := md5.Sum(png)
	return s.post(ctx, webhookMessage{
		MsgType: "image",
		Image: &webhookImage{
			Base64: base64.StdEncoding.EncodeToString(png),
			MD5:    hex.EncodeToString(sum[:]),
		},
	})
}

func (s *WebhookSender) post(ctx context.Context, msg webhookMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var res webhookResult
	if json.Unmarshal(body, &res) == nil && res.ErrCode != 0 {
		return fmt.Errorf("webhook error %d: %s", res.ErrCode, res.ErrMsg)
	}
	return nil
}
