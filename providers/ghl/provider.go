package ghl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	maxResponseBodyBytes  = 1 << 20
	defaultRequestTimeout = 15 * time.Second
)

// Provider is the GoHighLevel client surface: the OAuth leg of onboarding,
// the "who am I" identity fallback, and the outbound contact calls.
//
// GHL splits its OAuth endpoints across hosts: code exchange lives on the
// legacy token host while refresh and the REST API live on the services host.
// Both are configured explicitly for that reason.
type Provider struct {
	cfg    core.GHLConfig
	client core.HTTPDoer
	logger core.Logger
}

var (
	_ core.OAuthClient         = (*Provider)(nil)
	_ core.CRMIdentityResolver = (*Provider)(nil)
	_ core.CRMContactClient    = (*Provider)(nil)
)

func New(cfg core.GHLConfig, client core.HTTPDoer, logger core.Logger) (*Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("providers/ghl: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("providers/ghl: client secret is required")
	}
	if strings.TrimSpace(cfg.TokenURL) == "" || strings.TrimSpace(cfg.RefreshURL) == "" {
		return nil, fmt.Errorf("providers/ghl: token and refresh urls are required")
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("providers/ghl: api base url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return &Provider{
		cfg:    cfg,
		client: client,
		logger: glog.Ensure(logger),
	}, nil
}

// AuthorizeURL builds the marketplace "choose location" redirect for one
// onboarding attempt; state carries the flow token.
func (p *Provider) AuthorizeURL(state string) string {
	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", p.cfg.ClientID)
	values.Set("redirect_uri", p.cfg.RedirectURI)
	if len(p.cfg.Scopes) > 0 {
		// GHL expects the scope list comma separated, not space separated.
		values.Set("scope", strings.Join(p.cfg.Scopes, ","))
	}
	if strings.TrimSpace(state) != "" {
		values.Set("state", state)
	}
	return p.cfg.AuthorizeURL + "?" + values.Encode()
}

// Exchange trades an authorization code for tokens. The locationId field of
// the token response, when present, becomes the tenant key; callers fall back
// to ResolveTenantKey when it is absent.
func (p *Provider) Exchange(ctx context.Context, code string) (core.TokenSet, error) {
	if strings.TrimSpace(code) == "" {
		return core.TokenSet{}, fmt.Errorf("providers/ghl: authorization code is required")
	}
	values := url.Values{}
	values.Set("grant_type", "authorization_code")
	values.Set("code", code)
	values.Set("redirect_uri", p.cfg.RedirectURI)
	return p.tokenRequest(ctx, p.cfg.TokenURL, values)
}

func (p *Provider) Refresh(ctx context.Context, refreshToken string) (core.TokenSet, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return core.TokenSet{}, core.NewRefreshFailed("providers/ghl: refresh token is required")
	}
	values := url.Values{}
	values.Set("grant_type", "refresh_token")
	values.Set("refresh_token", refreshToken)
	tokens, err := p.tokenRequest(ctx, p.cfg.RefreshURL, values)
	if err != nil {
		return core.TokenSet{}, core.NewRefreshFailed(err.Error())
	}
	return tokens, nil
}

func (p *Provider) tokenRequest(ctx context.Context, endpoint string, values url.Values) (core.TokenSet, error) {
	values.Set("client_id", p.cfg.ClientID)
	values.Set("client_secret", p.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return core.TokenSet{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, status, err := p.do(req)
	if err != nil {
		return core.TokenSet{}, fmt.Errorf("providers/ghl: token request failed: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.TokenSet{}, fmt.Errorf("providers/ghl: decode token response (%d): %w", status, err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return core.TokenSet{}, core.NewRemoteCallFailed(
			fmt.Sprintf("providers/ghl: token endpoint error (%d): %s", status, compactPayload(body)),
			status,
		)
	}

	accessToken, _ := payload["access_token"].(string)
	if strings.TrimSpace(accessToken) == "" {
		return core.TokenSet{}, fmt.Errorf("providers/ghl: token response missing access token: %s", compactPayload(body))
	}
	refreshToken, _ := payload["refresh_token"].(string)
	locationID, _ := payload["locationId"].(string)

	return core.TokenSet{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TenantKey:    strings.TrimSpace(locationID),
		Raw:          payload,
	}, nil
}

// ResolveTenantKey asks the API who the token belongs to and picks the first
// location id from the response. Used only when the token exchange itself did
// not name a location.
func (p *Provider) ResolveTenantKey(ctx context.Context, accessToken string) (string, error) {
	req, err := p.apiRequest(ctx, http.MethodGet, "/users/me", accessToken, nil)
	if err != nil {
		return "", err
	}

	body, status, err := p.do(req)
	if err != nil {
		return "", fmt.Errorf("providers/ghl: identity lookup failed: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return "", core.NewRemoteCallFailed(
			fmt.Sprintf("providers/ghl: identity lookup error (%d): %s", status, compactPayload(body)),
			status,
		)
	}

	var payload struct {
		Company struct {
			Locations []struct {
				ID string `json:"id"`
			} `json:"locations"`
		} `json:"company"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("providers/ghl: decode identity response: %w", err)
	}
	for _, location := range payload.Company.Locations {
		if id := strings.TrimSpace(location.ID); id != "" {
			return id, nil
		}
	}
	return "", core.NewMissingTenantIdentity("providers/ghl: identity response carries no location id")
}

func (p *Provider) apiRequest(ctx context.Context, method string, path string, accessToken string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.cfg.APIBaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(p.cfg.APIVersion) != "" {
		req.Header.Set("Version", p.cfg.APIVersion)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (p *Provider) do(req *http.Request) ([]byte, int, error) {
	response, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return nil, response.StatusCode, fmt.Errorf("read response: %w", readErr)
	}
	if int64(len(body)) > maxResponseBodyBytes {
		return nil, response.StatusCode, fmt.Errorf("response exceeds %d bytes", maxResponseBodyBytes)
	}
	return body, response.StatusCode, nil
}

func compactPayload(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 512 {
		trimmed = trimmed[:512] + "..."
	}
	if trimmed == "" {
		return "<empty>"
	}
	return trimmed
}
