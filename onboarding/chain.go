package onboarding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	"github.com/BETO-17/caso-mercadopago-GHL/credentials"
	glog "github.com/goliatone/go-logger/glog"
)

// DefaultTenantKey is the binding used when the second OAuth leg arrives
// with no state parameter at all. Credentials stored under it are usable but
// the result flags the attempt for manual review. A state that is present
// but unknown is rejected instead of falling back here.
const DefaultTenantKey = "default"

// Chain runs tenant onboarding as two chained OAuth legs: GHL first, then
// Mercado Pago, correlated by an opaque flow token carried through the state
// parameter of both redirects. A tenant is fully onboarded only when both
// legs have stored credentials under the same tenant key.
type Chain struct {
	flows       core.FlowTokenStore
	credentials *credentials.Service
	ghl         core.OAuthClient
	ghlIdentity core.CRMIdentityResolver
	mp          core.OAuthClient
	mpIdentity  core.PSPIdentityResolver
	logger      core.Logger
	tokenTTL    time.Duration
}

type Config struct {
	Flows        core.FlowTokenStore
	Credentials  *credentials.Service
	GHL          core.OAuthClient
	GHLIdentity  core.CRMIdentityResolver
	MP           core.OAuthClient
	MPIdentity   core.PSPIdentityResolver
	Logger       core.Logger
	FlowTokenTTL time.Duration
}

func New(cfg Config) (*Chain, error) {
	if cfg.Flows == nil {
		return nil, fmt.Errorf("onboarding: flow token store is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("onboarding: credentials service is required")
	}
	if cfg.GHL == nil || cfg.MP == nil {
		return nil, fmt.Errorf("onboarding: both oauth clients are required")
	}
	ttl := cfg.FlowTokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Chain{
		flows:       cfg.Flows,
		credentials: cfg.Credentials,
		ghl:         cfg.GHL,
		ghlIdentity: cfg.GHLIdentity,
		mp:          cfg.MP,
		mpIdentity:  cfg.MPIdentity,
		logger:      glog.Ensure(cfg.Logger),
		tokenTTL:    ttl,
	}, nil
}

// StartResult carries the redirect that begins the first leg.
type StartResult struct {
	FlowToken    string
	AuthorizeURL string
}

// Start mints a flow token, persists it unresolved, and returns the GHL
// authorization redirect carrying it as state.
func (c *Chain) Start(ctx context.Context) (StartResult, error) {
	if c == nil {
		return StartResult{}, fmt.Errorf("onboarding: chain is nil")
	}

	token := core.GenerateFlowToken()
	now := time.Now().UTC()
	flow := core.FlowToken{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(c.tokenTTL),
	}
	if err := c.flows.Save(ctx, flow); err != nil {
		return StartResult{}, fmt.Errorf("onboarding: save flow token: %w", err)
	}

	core.LogInfo(ctx, c.logger, "onboarding started", map[string]any{"flow_token": token})
	return StartResult{
		FlowToken:    token,
		AuthorizeURL: c.ghl.AuthorizeURL(token),
	}, nil
}

// CRMResult carries the outcome of the first leg and the redirect that begins
// the second one. FlowToken is the freshly minted second-leg token, distinct
// from the one the callback arrived with.
type CRMResult struct {
	TenantKey    string
	FlowToken    string
	AuthorizeURL string
}

// CompleteCRM finishes the GHL leg: it validates the state against the stored
// flow, exchanges the code, settles the tenant key (token response first,
// identity lookup as fallback), and stores the GHL credential. The first-leg
// token is consumed here; the MP redirect carries a new token already bound
// to the resolved tenant, so a replayed GHL callback cannot re-bind an
// in-flight second leg.
func (c *Chain) CompleteCRM(ctx context.Context, state string, code string) (CRMResult, error) {
	if c == nil {
		return CRMResult{}, fmt.Errorf("onboarding: chain is nil")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return CRMResult{}, core.NewStateMismatch("onboarding: callback carries no state")
	}
	if strings.TrimSpace(code) == "" {
		return CRMResult{}, core.NewAuthorizationDenied("onboarding: callback carries no authorization code")
	}

	flow, err := c.flows.Get(ctx, state)
	if err != nil {
		return CRMResult{}, core.NewStateMismatch(
			fmt.Sprintf("onboarding: unknown or expired flow token %q", state),
		)
	}
	if flow.Resolved() {
		return CRMResult{}, core.NewStateMismatch(
			fmt.Sprintf("onboarding: flow token %q was already consumed by a completed first leg", state),
		)
	}

	tokens, err := c.ghl.Exchange(ctx, code)
	if err != nil {
		return CRMResult{}, fmt.Errorf("onboarding: ghl code exchange: %w", err)
	}

	tenantKey := strings.TrimSpace(tokens.TenantKey)
	if tenantKey == "" {
		if c.ghlIdentity == nil {
			return CRMResult{}, core.NewMissingTenantIdentity("onboarding: token response carries no location and no identity resolver is configured")
		}
		tenantKey, err = c.ghlIdentity.ResolveTenantKey(ctx, tokens.AccessToken)
		if err != nil {
			return CRMResult{}, err
		}
	}

	if _, err := c.credentials.Upsert(ctx, core.CredentialRecord{
		Platform:     core.PlatformGHL,
		TenantKey:    tenantKey,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}); err != nil {
		return CRMResult{}, fmt.Errorf("onboarding: store ghl credential: %w", err)
	}

	if err := c.flows.Resolve(ctx, state, tenantKey); err != nil {
		return CRMResult{}, fmt.Errorf("onboarding: resolve flow token: %w", err)
	}

	now := time.Now().UTC()
	next := core.FlowToken{
		Token:             core.GenerateFlowToken(),
		ResolvedTenantKey: tenantKey,
		CreatedAt:         now,
		ExpiresAt:         now.Add(c.tokenTTL),
	}
	if err := c.flows.Save(ctx, next); err != nil {
		return CRMResult{}, fmt.Errorf("onboarding: save second leg flow token: %w", err)
	}
	if err := c.flows.Delete(ctx, state); err != nil {
		core.LogWarn(ctx, c.logger, "consume first leg flow token failed", map[string]any{
			"flow_token": state,
		})
	}

	core.LogInfo(ctx, c.logger, "ghl leg completed", map[string]any{
		"flow_token":      state,
		"next_flow_token": next.Token,
		"tenant_key":      tenantKey,
	})
	return CRMResult{
		TenantKey:    tenantKey,
		FlowToken:    next.Token,
		AuthorizeURL: c.mp.AuthorizeURL(next.Token),
	}, nil
}

// PSPResult carries the outcome of the second leg.
type PSPResult struct {
	TenantKey    string
	UserID       string
	PublicKey    string
	ManualReview bool
}

// CompletePSP finishes the Mercado Pago leg. A presented state must name a
// resolved flow token or the callback fails with a state mismatch before any
// credential write. Only a callback with no state at all falls back to the
// default binding, flagged for manual review, since rejecting the seller
// outright would lose an otherwise valid authorization.
func (c *Chain) CompletePSP(ctx context.Context, state string, code string, authError string) (PSPResult, error) {
	if c == nil {
		return PSPResult{}, fmt.Errorf("onboarding: chain is nil")
	}
	if authError := strings.TrimSpace(authError); authError != "" {
		return PSPResult{}, core.NewAuthorizationDenied(
			fmt.Sprintf("onboarding: mercadopago authorization failed: %s", authError),
		)
	}
	if strings.TrimSpace(code) == "" {
		return PSPResult{}, core.NewAuthorizationDenied("onboarding: callback carries no authorization code")
	}

	state = strings.TrimSpace(state)
	tenantKey := DefaultTenantKey
	manualReview := true
	if state != "" {
		flow, err := c.flows.Get(ctx, state)
		if err != nil {
			return PSPResult{}, core.NewStateMismatch(
				fmt.Sprintf("onboarding: unknown or expired flow token %q", state),
			)
		}
		if !flow.Resolved() {
			return PSPResult{}, core.NewStateMismatch(
				fmt.Sprintf("onboarding: flow token %q has no completed first leg", state),
			)
		}
		tenantKey = flow.ResolvedTenantKey
		manualReview = false
	} else {
		core.LogWarn(ctx, c.logger, "psp leg without state, using default binding", nil)
	}

	tokens, err := c.mp.Exchange(ctx, code)
	if err != nil {
		return PSPResult{}, fmt.Errorf("onboarding: mercadopago code exchange: %w", err)
	}

	publicKey := strings.TrimSpace(tokens.PublicKey)
	if publicKey == "" && c.mpIdentity != nil {
		key, keyErr := c.mpIdentity.PublicKey(ctx, tokens.AccessToken)
		if keyErr != nil {
			core.LogWarn(ctx, c.logger, "public key lookup failed", map[string]any{
				"tenant_key": tenantKey,
			})
		} else {
			publicKey = key
		}
	}

	// The MP credential is keyed by the seller's user id; the resolved GHL
	// location rides along as the linked key so location-scoped lookups
	// still find it.
	pspUserID := strings.TrimSpace(tokens.TenantKey)
	credentialKey := pspUserID
	linkedKey := tenantKey
	if credentialKey == "" {
		credentialKey = tenantKey
		linkedKey = ""
	}
	if _, err := c.credentials.Upsert(ctx, core.CredentialRecord{
		Platform:        core.PlatformMP,
		TenantKey:       credentialKey,
		LinkedTenantKey: linkedKey,
		AccessToken:     tokens.AccessToken,
		RefreshToken:    tokens.RefreshToken,
		PublicKey:       publicKey,
	}); err != nil {
		return PSPResult{}, fmt.Errorf("onboarding: store mercadopago credential: %w", err)
	}

	if state != "" {
		if err := c.flows.Delete(ctx, state); err != nil {
			core.LogWarn(ctx, c.logger, "consume flow token failed", map[string]any{
				"flow_token": state,
			})
		}
	}

	core.LogInfo(ctx, c.logger, "mercadopago leg completed", map[string]any{
		"tenant_key":    tenantKey,
		"mp_user_id":    pspUserID,
		"manual_review": manualReview,
	})
	return PSPResult{
		TenantKey:    tenantKey,
		UserID:       pspUserID,
		PublicKey:    publicKey,
		ManualReview: manualReview,
	}, nil
}
