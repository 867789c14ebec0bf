// Package gateway talks to the Paystack API for deposit initiation and
// charge verification. Webhook verification lives in the reconciler, not
// here: inbound notifications must be checked before any outbound call.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.paystack.co"

type Config struct {
	SecretKey   string
	BaseURL     string
	CallbackURL string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.SugaredLogger
}

func NewClient(cfg Config, log *zap.SugaredLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// InitializeRequest asks the gateway to open a checkout session.
// AmountMinor is in the gateway's minor-unit convention (kobo).
type InitializeRequest struct {
	Email       string
	Reference   string
	AmountMinor int64
}

// Checkout is the gateway's answer to a deposit initiation.
type Checkout struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Charge is the gateway's view of a transaction, from the verify endpoint.
type Charge struct {
	ID          int64  `json:"id"`
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount"`
	PaidAt      string `json:"paid_at"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initialize opens a checkout session for a pending deposit.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*Checkout, error) {
	body := map[string]interface{}{
		"email":     req.Email,
		"amount":    req.AmountMinor,
		"reference": req.Reference,
	}
	if c.cfg.CallbackURL != "" {
		body["callback_url"] = fmt.Sprintf("%s/%s/status", c.cfg.CallbackURL, req.Reference)
	}
	var out Checkout
	if err := c.post(ctx, "/transaction/initialize", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify fetches the gateway's current view of a charge. Callers must never
// credit a wallet from this answer; crediting is webhook-only.
func (c *Client) Verify(ctx context.Context, reference string) (*Charge, error) {
	var out Charge
	if err := c.get(ctx, "/transaction/verify/"+reference, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("paystack: %s returned %d", req.URL.Path, resp.StatusCode)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("paystack: decode response: %w", err)
	}
	if !env.Status {
		return fmt.Errorf("paystack: %s", env.Message)
	}
	return json.Unmarshal(env.Data, out)
}
