package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pulseflow/pkg/constraints"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramSender posts messages through the Bot API. Message.To is the chat id.
type TelegramSender struct {
	BotToken string
	APIBase  string
	client   *http.Client
}

func NewTelegramSender(botToken, apiBase string, timeout time.Duration) *TelegramSender {
	if apiBase == "" {
		apiBase = defaultTelegramAPI
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramSender{
		BotToken: botToken,
		APIBase:  strings.TrimRight(apiBase, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *TelegramSender) Channel() string { return constraints.ChannelTelegram }

func (t *TelegramSender) Validate() error {
	if t.BotToken == "" {
		return errors.New("telegram: bot_token is required")
	}
	return nil
}

func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("telegram: chat id is empty")
	}
	text := msg.Body
	if msg.Subject != "" {
		text = "<b>" + msg.Subject + "</b>\n" + msg.Body
	}

	body, err := json.Marshal(map[string]any{
		"chat_id":    msg.To,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.APIBase, t.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", stripURL(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// stripURL drops the request URL from transport errors. The Bot API URL
// embeds the bot token, and send errors end up in the delivery history.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
