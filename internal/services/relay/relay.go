package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Client posts sale and renewal notifications to the external automation
// endpoints. Delivery is best effort: callers never treat a failed relay as
// a failure of the operation that triggered it.
type Client struct {
	httpc      *http.Client
	newSaleURL string
	renewalURL string
	secret     string
	lg         *zap.SugaredLogger
}

type Config struct {
	NewSaleURL string
	RenewalURL string
	Secret     string
	// HTTPClient defaults to http.DefaultClient (ambient platform timeout).
	HTTPClient *http.Client
}

func New(cfg Config, lg *zap.SugaredLogger) *Client {
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{
		httpc:      httpc,
		newSaleURL: cfg.NewSaleURL,
		renewalURL: cfg.RenewalURL,
		secret:     cfg.Secret,
		lg:         lg,
	}
}

// Result is the relay outcome. It is always returned by value; relay calls
// never produce a Go error for the caller to propagate.
type Result struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

type NewSalePayload struct {
	ClientName      string `json:"client_name,omitempty"`
	ClientEmail     string `json:"client_email"`
	ClientWhatsapp  string `json:"client_whatsapp,omitempty"`
	PortalLink      string `json:"portal_link,omitempty"`
	ExpiryDate      string `json:"expiry_date,omitempty"`
	PaymentID       string `json:"payment_id"`
	AccountEmail    string `json:"account_email,omitempty"`
	AccountPassword string `json:"account_password,omitempty"`
}

type RenewalPayload struct {
	ClientEmail   string `json:"client_email"`
	NewExpiryDate string `json:"new_expiry_date"`
	PaymentID     string `json:"payment_id"`
}

func (c *Client) SendNewSale(ctx context.Context, p NewSalePayload) Result {
	return c.post(ctx, c.newSaleURL, p)
}

func (c *Client) SendRenewal(ctx context.Context, p RenewalPayload) Result {
	return c.post(ctx, c.renewalURL, p)
}

const maxAttempts = 3

// post delivers the payload with up to 3 immediate attempts. Any transport
// error or non-2xx status counts as a failed attempt.
func (c *Client) post(ctx context.Context, url string, payload any) Result {
	if url == "" {
		return Result{OK: false, Error: "relay url not configured"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{OK: false, Error: err.Error()}
	}

	var lastErr string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := c.attempt(ctx, url, body)
		if err == nil {
			return res
		}
		lastErr = err.Error()
		c.lg.Warnw("relay attempt failed", "url", url, "attempt", attempt, "error", lastErr)
	}
	return Result{OK: false, Error: lastErr}
}

func (c *Client) attempt(ctx context.Context, url string, body []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-webhook-secret", c.secret)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return Result{OK: true, Data: data}, nil
}
