// Package chain talks to the node hosting the pool contract: balance queries
// over the LCD REST gateway and block/swap events over the CometBFT websocket.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"liquidity_go/internal/domain"

	"github.com/holiman/uint256"
)

type balanceResponse struct {
	Balance *struct {
		Denom  string `json:"denom"`
		Amount string `json:"amount"`
	} `json:"balance"`
}

// BankClient reads contract balances from the bank module.
type BankClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewBankClient creates a client for the LCD endpoint at baseURL.
func NewBankClient(baseURL string, timeout time.Duration) *BankClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BankClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default().With("module", "bank"),
	}
}

// QueryBalances implements domain.CustodyQuerier. A denom the address never held is zero.
func (c *BankClient) QueryBalances(ctx context.Context, address string, denoms []string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(denoms))
	for i, denom := range denoms {
		amount, err := c.queryBalance(ctx, address, denom)
		if err != nil {
			return nil, err
		}
		out[i] = amount
	}
	return out, nil
}

func (c *BankClient) queryBalance(ctx context.Context, address, denom string) (*uint256.Int, error) {
	const op = "bank balance"

	u := fmt.Sprintf("%s/cosmos/bank/v1beta1/balances/%s/by_denom?denom=%s",
		c.baseURL, url.PathEscape(address), url.QueryEscape(denom))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.NewFatalNetworkError(op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, truncate(body, 200))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, domain.NewNetworkError(op, err)
		}
		return nil, domain.NewFatalNetworkError(op, err)
	}

	var data balanceResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, domain.NewFatalNetworkError(op, fmt.Errorf("decode response: %w", err))
	}
	if data.Balance == nil || data.Balance.Amount == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(data.Balance.Amount)
	if err != nil {
		return nil, domain.NewFatalNetworkError(op, fmt.Errorf("parse amount %q: %w", data.Balance.Amount, err))
	}

	c.logger.Debug("balance", slog.String("denom", denom), slog.String("amount", amount.Dec()))
	return amount, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
