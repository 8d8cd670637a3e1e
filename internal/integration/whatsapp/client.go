// Package whatsapp is a thin client for the WhatsApp Business Cloud API
// (Meta Graph API) plus the webhook payload it posts back.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/d9705996/artisan/internal/integration"
	"github.com/d9705996/artisan/internal/version"
	"golang.org/x/oauth2"
)

const provider = "whatsapp"

// Config holds the Cloud API credentials.
type Config struct {
	AccessToken   string
	PhoneNumberID string
	APIBase       string
}

// Client sends messages from the tenant-shared business number.
type Client struct {
	http     *http.Client
	endpoint string
}

// New returns a Client. base may be nil; its transport and timeout are
// reused under the bearer token.
func New(cfg Config, base *http.Client) (*Client, error) {
	if cfg.AccessToken == "" || cfg.PhoneNumberID == "" {
		return nil, integration.NotConfigured(provider, "WHATSAPP_ACCESS_TOKEN", "WHATSAPP_PHONE_NUMBER_ID")
	}
	if base == nil {
		base = integration.HTTPClient()
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"}))
	hc.Timeout = base.Timeout
	return &Client{
		http:     hc,
		endpoint: strings.TrimRight(cfg.APIBase, "/") + "/" + cfg.PhoneNumberID + "/messages",
	}, nil
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type templateParam struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type templateComponent struct {
	Type       string          `json:"type"`
	Parameters []templateParam `json:"parameters"`
}

type templateBody struct {
	Name       string              `json:"name"`
	Language   map[string]string   `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type outbound struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText sends a free-form text message and returns the provider message
// id. Free-form messages are only delivered inside the 24h customer window.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	return c.send(ctx, outbound{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: body},
	})
}

// SendTemplate sends an approved template with positional body parameters.
func (c *Client) SendTemplate(ctx context.Context, to, name, language string, params ...string) (string, error) {
	tpl := &templateBody{Name: name, Language: map[string]string{"code": language}}
	if len(params) > 0 {
		comp := templateComponent{Type: "body"}
		for _, p := range params {
			comp.Parameters = append(comp.Parameters, templateParam{Type: "text", Text: p})
		}
		tpl.Components = []templateComponent{comp}
	}
	return c.send(ctx, outbound{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "template",
		Template:         tpl,
	})
}

func (c *Client) send(ctx context.Context, msg outbound) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read whatsapp response: %w", err)
	}
	var out sendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &integration.UpstreamError{Provider: provider, Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode >= 300 || out.Error != nil {
		msg := http.StatusText(resp.StatusCode)
		if out.Error != nil {
			msg = out.Error.Message
		}
		return "", &integration.UpstreamError{Provider: provider, Status: resp.StatusCode, Message: msg}
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", &integration.UpstreamError{Provider: provider, Status: resp.StatusCode, Message: "response carried no message id"}
	}
	return out.Messages[0].ID, nil
}
