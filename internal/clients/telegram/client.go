// Package telegram delivers notifications through the Bot API. Messages use
// HTML parse mode; photos go out as multipart uploads with a caption.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://api.telegram.org"

// Client sends to one chat with one bot token. Per-user overrides are
// handled by WithCredentials, which returns a rebound copy.
type Client struct {
	baseURL    string
	token      string
	chatID     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a telegram client. Empty token or chat id leaves it
// unconfigured; sends then fail fast without network traffic.
func NewClient(token, chatID string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		token:      token,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("client", "telegram").Logger(),
	}
}

// IsConfigured reports whether both token and chat id are present.
func (c *Client) IsConfigured() bool { return c.token != "" && c.chatID != "" }

// WithCredentials returns a copy bound to the given token and chat id.
// Empty arguments keep the current values, so a stored user override can
// replace either credential independently.
func (c *Client) WithCredentials(token, chatID string) *Client {
	clone := *c
	if token != "" {
		clone.token = token
	}
	if chatID != "" {
		clone.chatID = chatID
	}
	return &clone
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage delivers an HTML-formatted text message.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	if !c.IsConfigured() {
		return fmt.Errorf("telegram not configured")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// SendPhoto delivers a PNG with an HTML caption.
func (c *Client) SendPhoto(ctx context.Context, photo []byte, caption string) error {
	if !c.IsConfigured() {
		return fmt.Errorf("telegram not configured")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", c.chatID); err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if err := writer.WriteField("caption", caption); err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if err := writer.WriteField("parse_mode", "HTML"); err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	part, err := writer.CreateFormFile("photo", "chart.png")
	if err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(photo); err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendPhoto", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if !out.OK {
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, out.Description)
	}
	return nil
}
