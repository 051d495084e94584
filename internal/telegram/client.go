// Package telegram connects the workflow to the Telegram Bot API: Client
// implements workflow.Transport and Dispatcher long-polls for updates and
// hands each one to the workflow on its own goroutine.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/404FinnNotFound/TiktokBot123/internal/workflow"
)

// ErrTokenRequired is returned when no bot token is provided.
var ErrTokenRequired = errors.New("telegram: bot token is required")

// botAPI is the subset of *tgbotapi.BotAPI the package uses.
type botAPI interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Compile-time checks.
var (
	_ botAPI             = (*tgbotapi.BotAPI)(nil)
	_ workflow.Transport = (*Client)(nil)
)

// Client sends messages through the Bot API.
type Client struct {
	api      botAPI
	username string
	logger   *slog.Logger
}

type clientConfig struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures NewClient.
type ClientOption func(*clientConfig)

// WithHTTPClient sets the HTTP client used for every Bot API call.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cfg *clientConfig) {
		cfg.httpClient = c
	}
}

// WithEndpoint overrides the Bot API endpoint format, e.g. for a local Bot API server.
func WithEndpoint(endpoint string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.endpoint = endpoint
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// NewClient authenticates token against the Bot API and returns a Client.
func NewClient(token string, opts ...ClientOption) (*Client, error) {
	if token == "" {
		return nil, ErrTokenRequired
	}

	cfg := &clientConfig{
		endpoint:   tgbotapi.APIEndpoint,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, cfg.endpoint, cfg.httpClient)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}

	c := newClient(bot, cfg.logger)
	c.username = bot.Self.UserName
	return c, nil
}

func newClient(api botAPI, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger}
}

// Username returns the bot's username.
func (c *Client) Username() string {
	return c.username
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (workflow.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return workflow.MessageRef{}, err
	}
	msg, err := c.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return workflow.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return workflow.MessageRef{ChatID: chatID, MessageID: msg.MessageID}, nil
}

// SendMenu sends text with one row of inline buttons.
func (c *Client) SendMenu(ctx context.Context, chatID int64, text string, buttons []workflow.Button) (workflow.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return workflow.MessageRef{}, err
	}

	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
	}
	out := tgbotapi.NewMessage(chatID, text)
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)

	msg, err := c.api.Send(out)
	if err != nil {
		return workflow.MessageRef{}, fmt.Errorf("send menu: %w", err)
	}
	return workflow.MessageRef{ChatID: chatID, MessageID: msg.MessageID}, nil
}

// EditText replaces the text of a message. The inline keyboard, if any, is removed.
func (c *Client) EditText(ctx context.Context, ref workflow.MessageRef, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, ref workflow.MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// SendVideo uploads the file at path as a streamable video.
func (c *Client) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	video.Caption = caption
	video.SupportsStreaming = true

	if _, err := c.api.Send(video); err != nil {
		return fmt.Errorf("send video: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if callbackID == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}
