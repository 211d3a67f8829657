package line

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAPIBase     = "https://api.line.me"
	defaultHTTPTimeout = 10 * time.Second

	// MaxReplyMessages is the most messages one reply token accepts.
	MaxReplyMessages = 5
)

// Client sends replies through the LINE Messaging API.
type Client struct {
	accessToken string
	apiBase     string
	httpClient  *http.Client
}

// NewClient creates a Messaging API client. apiBase may be empty.
func NewClient(accessToken, apiBase string) *Client {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		accessToken: accessToken,
		apiBase:     strings.TrimRight(apiBase, "/"),
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetAPIBase overrides the API base URL (useful for testing).
func (c *Client) SetAPIBase(base string) {
	c.apiBase = strings.TrimRight(base, "/")
}

// Reply sends texts, in order, against a single-use reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, texts []string) error {
	if replyToken == "" {
		return errors.New("line: reply token is required")
	}
	if len(texts) == 0 {
		return nil
	}
	if len(texts) > MaxReplyMessages {
		return fmt.Errorf("line: %d messages exceed the reply limit of %d", len(texts), MaxReplyMessages)
	}

	req := ReplyRequest{ReplyToken: replyToken}
	for _, text := range texts {
		req.Messages = append(req.Messages, TextMessage{Type: MessageTypeText, Text: text})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("line: marshal reply: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/v2/bot/message/reply", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("line: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("line: send reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		snippet := string(respBody)
		if len(snippet) > 300 {
			snippet = snippet[:300]
		}
		return fmt.Errorf("line: unexpected status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
