package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LEONFROMWORK/chat/protocol"
)

// APIClient calls the chat HTTP API: the synchronous post path and history.
type APIClient struct {
	BaseURL    string
	Token      string
	User       string
	HTTPClient *http.Client
}

func NewAPIClient(baseURL, token, user string) *APIClient {
	return &APIClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Token:      token,
		User:       user,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Post creates a message and returns it rendered, ready to display.
func (a *APIClient) Post(ctx context.Context, roomID, content string) (protocol.Message, error) {
	var msg protocol.Message
	err := a.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/messages", map[string]string{"content": content}, &msg)
	return msg, err
}

// History returns the room's recent messages, oldest first.
func (a *APIClient) History(ctx context.Context, roomID string) ([]protocol.Message, error) {
	var body struct {
		Messages []protocol.Message `json:"messages"`
	}
	if err := a.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/messages", nil, &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("chat api: %d %s", e.Status, e.Message)
}

func (a *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	if a.User != "" {
		req.Header.Set("X-User-ID", a.User)
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
