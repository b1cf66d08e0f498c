package credits

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/ceramicnetwork/go-registry/models"
)

type balanceResponse struct {
	Balance *string `json:"balance"`
}

// Client reads an account's spendable credits from the credits API.
type Client struct {
	url        string
	account    string
	httpClient *http.Client
}

func NewClient(baseUrl, account string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{strings.TrimRight(baseUrl, "/"), account, httpClient}
}

// Balance returns nil when the account has no credits record.
func (c *Client) Balance(ctx context.Context) (*big.Rat, error) {
	qCtx, qCancel := context.WithTimeout(ctx, models.CreditsQueryTimeout)
	defer qCancel()

	req, err := http.NewRequestWithContext(qCtx, http.MethodGet, c.url+"/credits/"+url.PathEscape(c.account), nil)
	if err != nil {
		return nil, fmt.Errorf("credits: error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credits: error submitting request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("credits: error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("credits: unexpected status %d: %s", resp.StatusCode, body)
	}
	balanceResp := new(balanceResponse)
	if err = json.Unmarshal(body, balanceResp); err != nil {
		return nil, fmt.Errorf("credits: error unmarshaling response: %w", err)
	}
	if balanceResp.Balance == nil {
		return nil, nil
	}
	balance, ok := new(big.Rat).SetString(strings.TrimSpace(*balanceResp.Balance))
	if !ok {
		return nil, fmt.Errorf("credits: invalid balance %q", *balanceResp.Balance)
	}
	return balance, nil
}
