package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// LarkSender posts to a Feishu/Lark chat through an app bot.
type LarkSender struct {
	client *lark.Client
	chatID string
}

func NewLarkSender(appID, appSecret, chatID string, opts ...lark.ClientOptionFunc) (*LarkSender, error) {
	if appID == "" || appSecret == "" {
		return nil, errors.New("lark app_id and app_secret are required")
	}
	if chatID == "" {
		return nil, errors.New("lark chat_id is required")
	}
	return &LarkSender{
		client: lark.NewClient(appID, appSecret, opts...),
		chatID: chatID,
	}, nil
}

func (s *LarkSender) Name() string { return "lark" }

func (s *LarkSender) SendText(ctx context.Context, text string) error {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	return s.send(ctx, larkim.MsgTypeText, string(content))
}

func (s *LarkSender) SendImage(ctx context.Context, png []byte) error {
	req := larkim.NewCreateImageReqBuilder().
		Body(larkim.NewCreateImageReqBodyBuilder().
			ImageType(larkim.ImageTypeMessage).
			Image(bytes.NewReader(png)).
			Build()).
		Build()

	resp, err := s.client.Im.Image.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("upload image: code %d: %s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.ImageKey == nil {
		return errors.New("upload image: no image key returned")
	}

	content, err := json.Marshal(map[string]string{"image_key": *resp.Data.ImageKey})
	if err != nil {
		return err
	}
	return s.send(ctx, larkim.MsgTypeImage, string(content))
}

func (s *LarkSender) send(ctx context.Context, msgType, content string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(s.chatID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := s.client.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send message: code %d: %s", resp.Code, resp.Msg)
	}
	return nil
}
