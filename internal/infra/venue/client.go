// Package venue queries the order-book venue for the balances of the pool's sub-account.
package venue

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
	"liquidity_go/pkg/safe"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const depositsPath = "/injective/exchange/v1beta1/exchange/subaccountDeposits"

type deposit struct {
	AvailableBalance string `json:"available_balance"`
	TotalBalance     string `json:"total_balance"`
}

type depositsResponse struct {
	Deposits map[string]deposit `json:"deposits"`
}

// Client is the venue REST client (boundary layer).
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	logger     *slog.Logger
}

// NewClient creates a venue client. signer may be nil for public endpoints.
func NewClient(baseURL string, timeout time.Duration, signer *Signer) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer: signer,
		logger: slog.Default().With("module", "venue_client"),
	}
}

// QuerySubaccountBalances implements domain.VenueQuerier.
// Balances are total deposits truncated to whole base units; a denom without a
// deposit is zero.
func (c *Client) QuerySubaccountBalances(ctx context.Context, subaccountID string, denoms []string) ([]*uint256.Int, error) {
	const op = "subaccount deposits"

	query := url.Values{"subaccount_id": {subaccountID}}.Encode()
	resp, err := c.doRequest(ctx, http.MethodGet, depositsPath, query)
	if err != nil {
		return nil, domain.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("venue api error: status=%d body=%s", resp.StatusCode, string(body))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, domain.NewNetworkError(op, err)
		}
		return nil, domain.NewFatalNetworkError(op, err)
	}

	var data depositsResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, domain.NewFatalNetworkError(op, fmt.Errorf("failed to parse response: %w", err))
	}

	out := make([]*uint256.Int, len(denoms))
	for i, denom := range denoms {
		d, ok := data.Deposits[denom]
		if !ok || d.TotalBalance == "" {
			out[i] = new(uint256.Int)
			continue
		}
		amount, err := parseAmount(d.TotalBalance)
		if err != nil {
			return nil, domain.NewFatalNetworkError(op, fmt.Errorf("%s total balance %q: %w", denom, d.TotalBalance, err))
		}
		out[i] = amount
	}

	c.logger.Debug("Sub-account deposits", "subaccount", subaccountID, "denoms", len(data.Deposits))
	return out, nil
}

func parseAmount(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return safe.ToAtomics(d)
}

// doRequest handles auth headers.
func (c *Client) doRequest(ctx context.Context, method, path, query string) (*http.Response, error) {
	reqURL := c.baseURL + path
	if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	if c.signer.Enabled() {
		for k, v := range c.signer.GenerateHeaders(method, path, query, "") {
			req.Header.Set(k, v)
		}
	}

	return c.httpClient.Do(req)
}
