package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"doc_gateway/internal/config"
	"doc_gateway/internal/utils"
)

// ErrDeclined is returned when the payment collaborator refuses the charge.
var ErrDeclined = errors.New("payment declined")

// Package is a purchasable credit bundle.
type Package struct {
	ID         string `json:"id"`
	Credits    int    `json:"credits"`
	PriceCents int    `json:"price_cents"`
}

// Packages lists the purchasable bundles, cheapest first.
func Packages() []Package {
	pkgs := []Package{
		{ID: "starter", Credits: 100, PriceCents: 1500},
		{ID: "professional", Credits: 1000, PriceCents: 10000},
		{ID: "business", Credits: 5000, PriceCents: 40000},
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].PriceCents < pkgs[j].PriceCents })
	return pkgs
}

// FindPackage looks a package up by id.
func FindPackage(id string) (Package, bool) {
	for _, p := range Packages() {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

// Authorizer charges a payment token. The collaborator is a black box: it
// either authorizes the amount, declines it, or errors.
type Authorizer interface {
	Authorize(ctx context.Context, token string, amountCents int) error
}

// Client talks to the payment collaborator over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *utils.Logger
}

func NewClient(cfg config.PaymentConfig, logger *utils.Logger) *Client {
	if logger == nil {
		logger = utils.NewLogger("payment", utils.Info)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Authorize charges amountCents against the token. Returns nil when
// authorized, ErrDeclined when the collaborator refuses, and a transport
// error otherwise. Declines are logged without the token.
func (c *Client) Authorize(ctx context.Context, token string, amountCents int) error {
	body, err := json.Marshal(map[string]interface{}{
		"token":        token,
		"amount_cents": amountCents,
		"currency":     "usd",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal authorization: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/authorize", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("authorization request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		c.logger.Info("payment declined", "amount_cents", amountCents)
		return ErrDeclined
	default:
		return fmt.Errorf("payment collaborator returned status %d", resp.StatusCode)
	}
}
