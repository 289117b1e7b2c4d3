package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/putrabttart/dropstore-backend/pkg/config"
	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
	"github.com/putrabttart/dropstore-backend/pkg/logger"
)

var (
	errBaseURLRequired = errors.New("chat base url is required")
	errTokenRequired   = errors.New("chat bot token is required")
	errLoggerRequired  = errors.New("chat logger is required")
)

// Sender is the delivery surface used by fulfillment and notification code.
// Delivery is at-least-once and may fail; callers decide what is fatal.
type Sender interface {
	SendText(ctx context.Context, chatRef, text string) (int64, error)
	SendPhoto(ctx context.Context, chatRef, photo, caption string) (int64, error)
	DeleteMessage(ctx context.Context, chatRef string, messageID int64) error
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the chat platform's bot HTTP API.
type Client struct {
	http    httpDoer
	baseURL string
	token   string
	logger  *logger.Logger
}

// NewClient initializes the chat client and validates the credentials.
func NewClient(ctx context.Context, cfg config.ChatConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, errTokenRequired
	}

	c := &Client{
		http:    &http.Client{Timeout: cfg.SendTimeout},
		baseURL: baseURL,
		token:   token,
		logger:  logg,
	}

	logg.Info(ctx, "chat client initialized")
	return c, nil
}

type apiResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Description string `json:"description"`
}

// SendText delivers a plain text message and returns the message id.
func (c *Client) SendText(ctx context.Context, chatRef, text string) (int64, error) {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatRef,
		"text":    text,
	})
}

// SendPhoto delivers a photo with a caption and returns the message id.
func (c *Client) SendPhoto(ctx context.Context, chatRef, photo, caption string) (int64, error) {
	return c.call(ctx, "sendPhoto", map[string]any{
		"chat_id": chatRef,
		"photo":   photo,
		"caption": caption,
	})
}

// DeleteMessage removes a previously sent message.
func (c *Client) DeleteMessage(ctx context.Context, chatRef string, messageID int64) error {
	_, err := c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatRef,
		"message_id": messageID,
	})
	return err
}

func (c *Client) call(ctx context.Context, method string, payload map[string]any) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode chat payload")
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build chat request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("chat %s failed", method))
	}
	defer resp.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode chat response")
	}
	if !decoded.OK {
		msg := decoded.Description
		if msg == "" {
			msg = fmt.Sprintf("chat %s rejected with status %d", method, resp.StatusCode)
		}
		return 0, pkgerrors.New(pkgerrors.CodeDependency, msg)
	}
	return decoded.Result.MessageID, nil
}
