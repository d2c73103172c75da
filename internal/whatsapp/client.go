// Package whatsapp sends outbound messages through a gowa-style WhatsApp
// gateway. An unconfigured gateway is a legitimate delivery mode: sends
// become recorded no-ops, never errors.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"orderdesk_backend/platform/config"
	"orderdesk_backend/platform/logger"
	"orderdesk_backend/platform/phone"

	"golang.org/x/time/rate"
)

// Result reports one delivery attempt. Configured=false means the channel is
// not set up and the send was a deliberate no-op.
type Result struct {
	Configured bool
	OK         bool
	ID         string
	Err        error
}

type Client struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	limiter  *rate.Limiter
	log      *logger.Logger
}

type textRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type choicesRequest struct {
	Phone   string   `json:"phone"`
	Title   string   `json:"title"`
	Buttons []string `json:"buttons"`
}

type gatewayResponse struct {
	ID string `json:"id"`
}

// NewClient returns nil when the gateway URL is absent; a nil client no-ops.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		http:     &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(cfg.GetWhatsAppSendRate()), 1),
		log:      log,
	}
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) Result {
	if c == nil {
		return Result{Configured: false}
	}
	payload := textRequest{
		Phone:   normalizeRecipient(to),
		Message: body,
	}
	return c.post(ctx, "/send/message", payload, payload.Phone)
}

// SendChoices delivers an interactive message with button choices.
func (c *Client) SendChoices(ctx context.Context, to, title string, choices []string) Result {
	if c == nil {
		return Result{Configured: false}
	}
	payload := choicesRequest{
		Phone:   normalizeRecipient(to),
		Title:   title,
		Buttons: choices,
	}
	return c.post(ctx, "/send/button", payload, payload.Phone)
}

func (c *Client) post(ctx context.Context, path string, payload any, to string) Result {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{Configured: true, Err: err}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Configured: true, Err: fmt.Errorf("marshal whatsapp payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return Result{Configured: true, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Configured: true, Err: fmt.Errorf("whatsapp request failed: %w", err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return Result{
			Configured: true,
			Err:        fmt.Errorf("whatsapp gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}

	var parsed gatewayResponse
	_ = json.Unmarshal(data, &parsed)

	c.log.DeliveryResult(to, true, true)
	return Result{Configured: true, OK: true, ID: parsed.ID}
}

func normalizeRecipient(to string) string {
	return strings.TrimPrefix(phone.NormalizeE164(to), "+")
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
