// Package api is the typed client for the Quality Coach backend. It speaks
// the access-check, chat, history, and persona-correction endpoints; all
// wire traffic goes through the retrying transport.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"coachwidget/internal/transport"
)

// Client issues requests against one backend base URL.
type Client struct {
	base   string
	tr     *transport.Client
	logger *zap.Logger
}

// New creates a client. base is the server root, e.g. "https://coach.example.com".
func New(base string, tr *transport.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		tr:     tr,
		logger: logger,
	}
}

func (c *Client) url(path string) string {
	return c.base + "/api/v1" + path
}

// CheckAccess verifies whether the identity may use the chat feature.
func (c *Client) CheckAccess(ctx context.Context, email string) (*AccessCheckResponse, error) {
	var resp AccessCheckResponse
	err := c.tr.DoJSON(ctx, http.MethodPost, c.url("/access/check"), transport.Options{
		Body: AccessCheckRequest{Email: email},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("access check failed: %w", err)
	}
	return &resp, nil
}

// SendChat submits one chat turn.
func (c *Client) SendChat(ctx context.Context, token string, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	err := c.tr.DoJSON(ctx, http.MethodPost, c.url("/chat"), transport.Options{
		Body:        req,
		BearerToken: token,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetHistory loads the persisted conversation for a thread. A 404 means the
// thread has no history yet and returns an empty slice, not an error.
func (c *Client) GetHistory(ctx context.Context, token, threadID string) ([]Message, error) {
	var messages []Message
	err := c.tr.DoJSON(ctx, http.MethodGet, c.url("/conversations/"+threadID+"/messages"), transport.Options{
		BearerToken: token,
	}, &messages)
	if err != nil {
		if transport.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return messages, nil
}

// CorrectPersona records a user-driven persona change. Best-effort telemetry;
// callers decide how hard to try.
func (c *Client) CorrectPersona(ctx context.Context, token string, corr PersonaCorrection) (*CorrectionResponse, error) {
	var resp CorrectionResponse
	err := c.tr.DoJSON(ctx, http.MethodPost, c.url("/persona/correct"), transport.Options{
		Body:        corr,
		BearerToken: token,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
