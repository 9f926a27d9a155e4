package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

// ConfigProvider loads configuration on top of compiled-in defaults.
type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

// RawConfigLoader yields the raw configuration map from whatever source backs
// the deployment (file, environment, remote).
type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

// OptionsResolver merges defaults, loaded configuration, and runtime
// overrides into one validated Config.
type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct{}

func (staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return map[string]any{}, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver implements precedence defaults < config < runtime using
// layered option scopes.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.PublicURL) != "" {
		layer["public_url"] = cfg.PublicURL
	}
	if includeZero || cfg.FlowTokenTTL > 0 {
		layer["flow_token_ttl"] = cfg.FlowTokenTTL
	}

	ghl := map[string]any{}
	for key, value := range map[string]string{
		"client_id":     cfg.GHL.ClientID,
		"client_secret": cfg.GHL.ClientSecret,
		"redirect_uri":  cfg.GHL.RedirectURI,
		"authorize_url": cfg.GHL.AuthorizeURL,
		"token_url":     cfg.GHL.TokenURL,
		"refresh_url":   cfg.GHL.RefreshURL,
		"api_base_url":  cfg.GHL.APIBaseURL,
		"api_version":   cfg.GHL.APIVersion,
	} {
		if includeZero || strings.TrimSpace(value) != "" {
			ghl[key] = value
		}
	}
	if includeZero || len(cfg.GHL.Scopes) > 0 {
		ghl["scopes"] = append([]string(nil), cfg.GHL.Scopes...)
	}
	if len(ghl) > 0 {
		layer["ghl"] = ghl
	}

	mp := map[string]any{}
	for key, value := range map[string]string{
		"client_id":     cfg.MP.ClientID,
		"client_secret": cfg.MP.ClientSecret,
		"redirect_uri":  cfg.MP.RedirectURI,
		"authorize_url": cfg.MP.AuthorizeURL,
		"token_url":     cfg.MP.TokenURL,
		"api_base_url":  cfg.MP.APIBaseURL,
	} {
		if includeZero || strings.TrimSpace(value) != "" {
			mp[key] = value
		}
	}
	if includeZero || len(cfg.MP.Scopes) > 0 {
		mp["scopes"] = append([]string(nil), cfg.MP.Scopes...)
	}
	if len(mp) > 0 {
		layer["mp"] = mp
	}

	reconcile := map[string]any{}
	if includeZero || cfg.Reconcile.Window > 0 {
		reconcile["window"] = cfg.Reconcile.Window
	}
	if includeZero || cfg.Reconcile.SearchLimit > 0 {
		reconcile["search_limit"] = cfg.Reconcile.SearchLimit
	}
	if includeZero || strings.TrimSpace(cfg.Reconcile.ReportDir) != "" {
		reconcile["report_dir"] = cfg.Reconcile.ReportDir
	}
	if len(reconcile) > 0 {
		layer["reconcile"] = reconcile
	}

	return layer
}
