package ragora

import (
	"context"
	"net/http"
)

// CreditBalance is the prepaid balance of the account behind the API key.
type CreditBalance struct {
	BalanceUSD      float64 `json:"balance_usd"`
	Currency        string  `json:"currency"`
	LifetimeUsedUSD float64 `json:"lifetime_used_usd,omitempty"`
}

// GetBalance returns the current credit balance.
func (c *Client) GetBalance(ctx context.Context) (*CreditBalance, error) {
	var b CreditBalance
	if err := c.do(ctx, http.MethodGet, "/v1/credits/balance", nil, nil, &b); err != nil {
		return nil, err
	}
	if b.Currency == "" {
		b.Currency = "USD"
	}
	return &b, nil
}
