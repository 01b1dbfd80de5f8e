package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"polysentry/clients/notifier"
	"polysentry/config"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ChannelName is the Destination.Channel value for Telegram chats.
const ChannelName = "telegram"

const pollErrorBackoff = 5 * time.Second

// TelegramClient sends messages to Telegram chats and receives bot commands
// through getUpdates long polling.
// Implements notifier.Channel interface.
type TelegramClient struct {
	logger       *zap.Logger
	apiURL       string
	botToken     string
	pollTimeout  time.Duration
	listenEnable bool
	client       *http.Client
	pollClient   *http.Client
}

func NewTelegramClient(logger *zap.Logger, cfg *config.Config) *TelegramClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	apiURL := strings.TrimRight(cfg.Telegram.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}

	token := cfg.Telegram.BotToken
	if token == "" {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, Telegram channel disabled")
		return &TelegramClient{
			logger: logger,
			apiURL: apiURL,
		}
	}

	logger.Info("telegram bot initialized",
		zap.Bool("isProd", cfg.IsProd()),
		zap.String("defaultChatID", cfg.TelegramChatID()),
		zap.Bool("listen", cfg.Telegram.ListenEnable),
	)

	return &TelegramClient{
		logger:       logger,
		apiURL:       apiURL,
		botToken:     token,
		pollTimeout:  cfg.Telegram.PollTimeout,
		listenEnable: cfg.Telegram.ListenEnable,
		client:       &http.Client{Timeout: 10 * time.Second},
		// long polls hold the connection open for pollTimeout
		pollClient: &http.Client{Timeout: cfg.Telegram.PollTimeout + 10*time.Second},
	}
}

func (tc *TelegramClient) Name() string { return ChannelName }

func (tc *TelegramClient) Markup() notifier.Markup { return Markdown{} }

func (tc *TelegramClient) Enabled() bool { return tc.botToken != "" }

// Send sends a Markdown message to a chat.
func (tc *TelegramClient) Send(ctx context.Context, chatID, text string) error {
	if !tc.Enabled() {
		return fmt.Errorf("telegram not configured")
	}
	if chatID == "" {
		return fmt.Errorf("chatID is empty")
	}

	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// ---- getUpdates ----

type apiResponse[T any] struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      T      `json:"result"`
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	From *struct {
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
	} `json:"from"`
}

// Listen long-polls getUpdates and dispatches slash commands to handler until ctx is done.
// Non-command messages are ignored.
func (tc *TelegramClient) Listen(ctx context.Context, handler notifier.CommandHandler) error {
	if !tc.Enabled() || !tc.listenEnable {
		tc.logger.Info("telegram command listener disabled")
		return nil
	}

	tc.logger.Info("telegram command listener started")

	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := tc.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			tc.logger.Warn("telegram getUpdates failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollErrorBackoff):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			tc.dispatch(ctx, u, handler)
		}
	}
}

func (tc *TelegramClient) dispatch(ctx context.Context, u update, handler notifier.CommandHandler) {
	if u.Message == nil {
		return
	}

	name, args, ok := notifier.ParseCommand(u.Message.Text)
	if !ok {
		return
	}

	chatID := strconv.FormatInt(u.Message.Chat.ID, 10)
	cmd := notifier.Command{
		Name:   name,
		Args:   args,
		Source: notifier.Destination{Channel: ChannelName, ChatID: chatID},
	}
	if u.Message.From != nil {
		cmd.From = u.Message.From.Username
		if cmd.From == "" {
			cmd.From = u.Message.From.FirstName
		}
	}

	reply := handler(ctx, cmd)
	if reply == "" {
		return
	}

	if err := tc.Send(ctx, chatID, reply); err != nil {
		tc.logger.Warn("failed to send telegram command reply",
			zap.String("command", name),
			zap.String("chatID", chatID),
			zap.Error(err),
		)
	}
}

func (tc *TelegramClient) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(int(tc.pollTimeout.Seconds())))
	q.Set("allowed_updates", `["message"]`)
	if offset > 0 {
		q.Set("offset", strconv.FormatInt(offset, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tc.methodURL("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := tc.pollClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}

	var out apiResponse[[]update]
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram error: %s", out.Description)
	}

	return out.Result, nil
}

func (tc *TelegramClient) methodURL(method string) string {
	return tc.apiURL + "/bot" + tc.botToken + "/" + method
}

// Close cleans up resources. Implements notifier.Channel interface.
func (tc *TelegramClient) Close() error {
	return nil
}

// Markdown renders emphasis in Telegram's legacy Markdown mode.
type Markdown struct{}

func (Markdown) Bold(s string) string { return "*" + escapeMarkdown(s) + "*" }

func (Markdown) Code(s string) string { return "`" + strings.ReplaceAll(s, "`", "'") + "`" }

func (Markdown) Escape(s string) string { return escapeMarkdown(s) }

// escapeMarkdown escapes special characters for Telegram Markdown.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
