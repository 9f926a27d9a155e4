package core

import (
	"fmt"
	"strings"
	"time"
)

type GHLConfig struct {
	ClientID     string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string   `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI  string   `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	AuthorizeURL string   `koanf:"authorize_url" mapstructure:"authorize_url"`
	TokenURL     string   `koanf:"token_url" mapstructure:"token_url"`
	RefreshURL   string   `koanf:"refresh_url" mapstructure:"refresh_url"`
	APIBaseURL   string   `koanf:"api_base_url" mapstructure:"api_base_url"`
	APIVersion   string   `koanf:"api_version" mapstructure:"api_version"`
	Scopes       []string `koanf:"scopes" mapstructure:"scopes"`
}

type MPConfig struct {
	ClientID     string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string   `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI  string   `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	AuthorizeURL string   `koanf:"authorize_url" mapstructure:"authorize_url"`
	TokenURL     string   `koanf:"token_url" mapstructure:"token_url"`
	APIBaseURL   string   `koanf:"api_base_url" mapstructure:"api_base_url"`
	Scopes       []string `koanf:"scopes" mapstructure:"scopes"`
}

type ReconcileConfig struct {
	Window      time.Duration `koanf:"window" mapstructure:"window"`
	SearchLimit int           `koanf:"search_limit" mapstructure:"search_limit"`
	ReportDir   string        `koanf:"report_dir" mapstructure:"report_dir"`
}

type Config struct {
	ServiceName  string          `koanf:"service_name" mapstructure:"service_name"`
	PublicURL    string          `koanf:"public_url" mapstructure:"public_url"`
	FlowTokenTTL time.Duration   `koanf:"flow_token_ttl" mapstructure:"flow_token_ttl"`
	GHL          GHLConfig       `koanf:"ghl" mapstructure:"ghl"`
	MP           MPConfig        `koanf:"mp" mapstructure:"mp"`
	Reconcile    ReconcileConfig `koanf:"reconcile" mapstructure:"reconcile"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:  "ghl-mp-integration",
		FlowTokenTTL: 15 * time.Minute,
		GHL: GHLConfig{
			AuthorizeURL: "https://marketplace.gohighlevel.com/oauth/chooselocation",
			TokenURL:     "https://api.msgsndr.com/oauth/token",
			RefreshURL:   "https://services.leadconnectorhq.com/oauth/token",
			APIBaseURL:   "https://services.leadconnectorhq.com",
			APIVersion:   "2021-07-28",
			Scopes: []string{
				"contacts.read",
				"contacts.write",
				"locations.readonly",
				"users.readonly",
			},
		},
		MP: MPConfig{
			AuthorizeURL: "https://auth.mercadopago.com/authorization",
			TokenURL:     "https://api.mercadopago.com/oauth/token",
			APIBaseURL:   "https://api.mercadopago.com",
			Scopes:       []string{"read", "write"},
		},
		Reconcile: ReconcileConfig{
			Window:      24 * time.Hour,
			SearchLimit: 50,
			ReportDir:   ".",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.FlowTokenTTL < 0 {
		return fmt.Errorf("core: flow_token_ttl must not be negative")
	}
	if err := c.GHL.validate(); err != nil {
		return err
	}
	if err := c.MP.validate(); err != nil {
		return err
	}
	return c.Reconcile.validate()
}

func (c GHLConfig) validate() error {
	for field, value := range map[string]string{
		"ghl.authorize_url": c.AuthorizeURL,
		"ghl.token_url":     c.TokenURL,
		"ghl.refresh_url":   c.RefreshURL,
		"ghl.api_base_url":  c.APIBaseURL,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("core: %s is required", field)
		}
	}
	return nil
}

func (c MPConfig) validate() error {
	for field, value := range map[string]string{
		"mp.authorize_url": c.AuthorizeURL,
		"mp.token_url":     c.TokenURL,
		"mp.api_base_url":  c.APIBaseURL,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("core: %s is required", field)
		}
	}
	return nil
}

func (c ReconcileConfig) validate() error {
	if c.Window < 0 {
		return fmt.Errorf("core: reconcile.window must not be negative")
	}
	if c.SearchLimit < 0 {
		return fmt.Errorf("core: reconcile.search_limit must not be negative")
	}
	return nil
}
