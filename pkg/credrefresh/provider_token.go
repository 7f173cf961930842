// Package credrefresh proactively exchanges soon-to-expire social platform
// tokens for fresh long-lived ones before the webhook bridge's outbound
// send calls start failing on an expired credential.
package credrefresh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const providerTokenEndpoint = "https://graph.example-platform.com/v18.0/oauth/access_token"

// ProviderTokenExchange performs the long-lived-token exchange grant the
// bridge's supported platforms use to rotate a SocialConnection's access
// token without re-running the full OAuth consent flow.
type ProviderTokenExchange struct {
	AppID      string
	AppSecret  string
	httpClient *http.Client
}

// NewProviderTokenExchange builds an exchange client for appID/appSecret.
func NewProviderTokenExchange(appID, appSecret string) *ProviderTokenExchange {
	return &ProviderTokenExchange{
		AppID:      appID,
		AppSecret:  appSecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// TokenResponse is the provider's token-exchange response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ExchangeForLongLived trades a connection's current access token for a
// fresh long-lived one.
func (p *ProviderTokenExchange) ExchangeForLongLived(ctx context.Context, currentToken string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {p.AppID},
		"client_secret":     {p.AppSecret},
		"fb_exchange_token": {currentToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, providerTokenEndpoint, bytes.NewBufferString(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token exchange returned %d: %s", resp.StatusCode, string(body))
	}

	var tok TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token exchange response: %w", err)
	}
	return &tok, nil
}
