package mercadopago

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	maxResponseBodyBytes  = 1 << 20
	defaultRequestTimeout = 15 * time.Second
)

// Provider is the Mercado Pago client surface: the second OAuth leg of
// onboarding, the account identity lookup, and the payments read/write API.
// The seller's numeric user_id acts as the tenant key on this side.
type Provider struct {
	cfg    core.MPConfig
	client core.HTTPDoer
	logger core.Logger
}

var (
	_ core.OAuthClient         = (*Provider)(nil)
	_ core.PSPIdentityResolver = (*Provider)(nil)
	_ core.PSPPaymentsClient   = (*Provider)(nil)
)

func New(cfg core.MPConfig, client core.HTTPDoer, logger core.Logger) (*Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("providers/mercadopago: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("providers/mercadopago: client secret is required")
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("providers/mercadopago: token url is required")
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("providers/mercadopago: api base url is required")
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

func (p *Provider) AuthorizeURL(state string) string {
	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", p.cfg.ClientID)
	values.Set("redirect_uri", p.cfg.RedirectURI)
	if len(p.cfg.Scopes) > 0 {
		values.Set("scope", strings.Join(p.cfg.Scopes, " "))
	}
	if strings.TrimSpace(state) != "" {
		values.Set("state", state)
	}
	return p.cfg.AuthorizeURL + "?" + values.Encode()
}

// Exchange trades an authorization code for tokens. The seller's user_id is
// mandatory here: without it there is no tenant key to store credentials
// under, so its absence is fatal.
func (p *Provider) Exchange(ctx context.Context, code string) (core.TokenSet, error) {
	if strings.TrimSpace(code) == "" {
		return core.TokenSet{}, fmt.Errorf("providers/mercadopago: authorization code is required")
	}
	values := url.Values{}
	values.Set("grant_type", "authorization_code")
	values.Set("code", code)
	values.Set("redirect_uri", p.cfg.RedirectURI)

	tokens, err := p.tokenRequest(ctx, values)
	if err != nil {
		return core.TokenSet{}, err
	}
	if strings.TrimSpace(tokens.TenantKey) == "" {
		return core.TokenSet{}, fmt.Errorf("providers/mercadopago: token response missing user_id")
	}
	return tokens, nil
}

func (p *Provider) Refresh(ctx context.Context, refreshToken string) (core.TokenSet, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return core.TokenSet{}, core.NewRefreshFailed("providers/mercadopago: refresh token is required")
	}
	values := url.Values{}
	values.Set("grant_type", "refresh_token")
	values.Set("refresh_token", refreshToken)

	tokens, err := p.tokenRequest(ctx, values)
	if err != nil {
		return core.TokenSet{}, core.NewRefreshFailed(err.Error())
	}
	return tokens, nil
}

func (p *Provider) tokenRequest(ctx context.Context, values url.Values) (core.TokenSet, error) {
	values.Set("client_id", p.cfg.ClientID)
	values.Set("client_secret", p.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(values.Encode()))
	if err != nil {
		return core.TokenSet{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, status, err := p.do(req)
	if err != nil {
		return core.TokenSet{}, fmt.Errorf("providers/mercadopago: token request failed: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.TokenSet{}, fmt.Errorf("providers/mercadopago: decode token response (%d): %w", status, err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return core.TokenSet{}, core.NewRemoteCallFailed(
			fmt.Sprintf("providers/mercadopago: token endpoint error (%d): %s", status, compactPayload(body)),
			status,
		)
	}

	accessToken, _ := payload["access_token"].(string)
	if strings.TrimSpace(accessToken) == "" {
		return core.TokenSet{}, fmt.Errorf("providers/mercadopago: token response missing access token: %s", compactPayload(body))
	}
	refreshToken, _ := payload["refresh_token"].(string)

	return core.TokenSet{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TenantKey:    stringifyUserID(payload["user_id"]),
		Raw:          payload,
	}, nil
}

// PublicKey fetches the account's publishable key. Onboarding stores it
// alongside the tokens so the checkout frontend never needs its own lookup.
func (p *Provider) PublicKey(ctx context.Context, accessToken string) (string, error) {
	req, err := p.apiRequest(ctx, http.MethodGet, "/users/me", accessToken, nil)
	if err != nil {
		return "", err
	}
	body, status, err := p.do(req)
	if err != nil {
		return "", fmt.Errorf("providers/mercadopago: identity lookup failed: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return "", core.NewRemoteCallFailed(
			fmt.Sprintf("providers/mercadopago: identity lookup error (%d): %s", status, compactPayload(body)),
			status,
		)
	}

	var payload struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("providers/mercadopago: decode identity response: %w", err)
	}
	return strings.TrimSpace(payload.PublicKey), nil
}

func (p *Provider) apiRequest(ctx context.Context, method string, path string, accessToken string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.cfg.APIBaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
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

// stringifyUserID tolerates the numeric user_id MP sends in JSON tokens.
func stringifyUserID(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	case json.Number:
		return typed.String()
	default:
		return ""
	}
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
