// Package factory builds platform adapters from stored connections. It is
// the only place that decrypts credential blobs; decrypted bundles live in
// call scope and are handed straight to the adapter constructor.
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/atlasmedia/adboard-backend/pkg/config"
	"github.com/atlasmedia/adboard-backend/pkg/db/models"
	"github.com/atlasmedia/adboard-backend/pkg/enums"
	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
	"github.com/atlasmedia/adboard-backend/pkg/platforms"
	"github.com/atlasmedia/adboard-backend/pkg/platforms/ganalytics"
	"github.com/atlasmedia/adboard-backend/pkg/platforms/googleads"
	"github.com/atlasmedia/adboard-backend/pkg/platforms/metaads"
)

// Decrypter opens a stored credential blob into the given bundle shape.
type Decrypter interface {
	Decrypt(blob string, out any) error
}

// Factory turns a client's platform connections into ready adapters. Token
// sources are shared per (client, platform) so concurrent requests reuse one
// access token and its singleflight refresh.
type Factory struct {
	vault     Decrypter
	googleAds config.GoogleAdsConfig
	metaAds   config.MetaAdsConfig
	analytics config.AnalyticsConfig

	googleAdsOpts []googleads.Option
	metaAdsOpts   []metaads.Option
	analyticsOpts []ganalytics.Option

	mu      sync.Mutex
	sources map[string]*platforms.TokenSource
}

// Option configures optional factory behavior.
type Option func(*Factory)

// WithGoogleAdsOptions appends options to every search-ads adapter built.
func WithGoogleAdsOptions(opts ...googleads.Option) Option {
	return func(f *Factory) { f.googleAdsOpts = append(f.googleAdsOpts, opts...) }
}

// WithMetaAdsOptions appends options to every social-ads adapter built.
func WithMetaAdsOptions(opts ...metaads.Option) Option {
	return func(f *Factory) { f.metaAdsOpts = append(f.metaAdsOpts, opts...) }
}

// WithAnalyticsOptions appends options to every analytics adapter built.
func WithAnalyticsOptions(opts ...ganalytics.Option) Option {
	return func(f *Factory) { f.analyticsOpts = append(f.analyticsOpts, opts...) }
}

// New builds the factory around the vault and the app-level platform config
// used as credential fallback.
func New(vault Decrypter, cfg *config.Config, opts ...Option) *Factory {
	factory := &Factory{
		vault:     vault,
		googleAds: cfg.GoogleAds,
		metaAds:   cfg.MetaAds,
		analytics: cfg.Analytics,
		sources:   make(map[string]*platforms.TokenSource),
	}
	if len(cfg.MetaAds.ConversionActions) > 0 {
		factory.metaAdsOpts = append(factory.metaAdsOpts,
			metaads.WithConversionActions(cfg.MetaAds.ConversionActions))
	}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

// ForConnection decrypts the connection's credential bundle and builds its
// adapter. An absent or empty blob is CREDENTIAL_MISSING; a blob that cannot
// be opened surfaces the vault's CRYPTO_ERROR unchanged.
func (f *Factory) ForConnection(clientID uuid.UUID, conn *models.PlatformConnection) (platforms.Adapter, error) {
	if conn == nil || !conn.HasCredentials() {
		platform := enums.Platform("")
		if conn != nil {
			platform = conn.Platform
		}
		return nil, pkgerrors.New(pkgerrors.CodeCredentialMissing,
			fmt.Sprintf("no credentials stored for %s", platform))
	}

	switch conn.Platform {
	case enums.PlatformSearchAds:
		var creds googleads.Credentials
		if err := f.vault.Decrypt(conn.EncryptedCredentials, &creds); err != nil {
			return nil, err
		}
		return f.buildGoogleAds(clientID, conn.IdentifierID, creds)

	case enums.PlatformSocialAds:
		var creds metaads.Credentials
		if err := f.vault.Decrypt(conn.EncryptedCredentials, &creds); err != nil {
			return nil, err
		}
		return f.buildMetaAds(conn.IdentifierID, creds)

	case enums.PlatformAnalytics:
		var creds ganalytics.Credentials
		if err := f.vault.Decrypt(conn.EncryptedCredentials, &creds); err != nil {
			return nil, err
		}
		return f.buildAnalytics(clientID, conn.IdentifierID, creds)

	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unknown platform %q", conn.Platform))
	}
}

// Probe builds a throwaway adapter from a raw, not-yet-stored bundle and runs
// its connection test. No token source is registered for probes.
func (f *Factory) Probe(ctx context.Context, platform enums.Platform, identifierID string, bundle json.RawMessage) error {
	adapter, err := f.adapterFromBundle(platform, identifierID, bundle)
	if err != nil {
		return err
	}
	return adapter.TestConnection(ctx)
}

// Forget drops the shared token source for a connection. Called after a
// credential rotation so the next request exchanges the new secret.
func (f *Factory) Forget(clientID uuid.UUID, platform enums.Platform) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sources, sourceKey(clientID, platform))
}

func (f *Factory) adapterFromBundle(platform enums.Platform, identifierID string, bundle json.RawMessage) (platforms.Adapter, error) {
	switch platform {
	case enums.PlatformSearchAds:
		var creds googleads.Credentials
		if err := decodeBundle(bundle, &creds); err != nil {
			return nil, err
		}
		creds = f.withGoogleAdsDefaults(creds)
		adapter, err := googleads.New(identifierID, creds, f.googleAdsOpts...)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build search-ads adapter")
		}
		return adapter, nil

	case enums.PlatformSocialAds:
		var creds metaads.Credentials
		if err := decodeBundle(bundle, &creds); err != nil {
			return nil, err
		}
		adapter, err := metaads.New(identifierID, f.withMetaAdsDefaults(creds), f.metaAdsOpts...)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build social-ads adapter")
		}
		return adapter, nil

	case enums.PlatformAnalytics:
		var creds ganalytics.Credentials
		if err := decodeBundle(bundle, &creds); err != nil {
			return nil, err
		}
		adapter, err := ganalytics.New(identifierID, f.withAnalyticsDefaults(creds), f.analyticsOpts...)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build analytics adapter")
		}
		return adapter, nil

	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown platform %q", platform))
	}
}

func (f *Factory) buildGoogleAds(clientID uuid.UUID, identifierID string, creds googleads.Credentials) (platforms.Adapter, error) {
	creds = f.withGoogleAdsDefaults(creds)
	adapter, err := googleads.New(identifierID, creds, f.googleAdsOpts...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build search-ads adapter")
	}

	opts := append([]googleads.Option{}, f.googleAdsOpts...)
	opts = append(opts, googleads.WithTokenSource(f.source(clientID, enums.PlatformSearchAds, adapter.TokenFunc())))
	shared, err := googleads.New(identifierID, creds, opts...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build search-ads adapter")
	}
	return shared, nil
}

func (f *Factory) buildMetaAds(identifierID string, creds metaads.Credentials) (platforms.Adapter, error) {
	adapter, err := metaads.New(identifierID, f.withMetaAdsDefaults(creds), f.metaAdsOpts...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build social-ads adapter")
	}
	return adapter, nil
}

func (f *Factory) buildAnalytics(clientID uuid.UUID, identifierID string, creds ganalytics.Credentials) (platforms.Adapter, error) {
	creds = f.withAnalyticsDefaults(creds)
	adapter, err := ganalytics.New(identifierID, creds, f.analyticsOpts...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build analytics adapter")
	}

	opts := append([]ganalytics.Option{}, f.analyticsOpts...)
	opts = append(opts, ganalytics.WithTokenSource(f.source(clientID, enums.PlatformAnalytics, adapter.TokenFunc())))
	shared, err := ganalytics.New(identifierID, creds, opts...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build analytics adapter")
	}
	return shared, nil
}

// source returns the registry token source for the connection, creating it
// from the given exchange on first use.
func (f *Factory) source(clientID uuid.UUID, platform enums.Platform, fetch platforms.TokenFunc) *platforms.TokenSource {
	key := sourceKey(clientID, platform)

	f.mu.Lock()
	defer f.mu.Unlock()
	if src, ok := f.sources[key]; ok {
		return src
	}
	src := platforms.NewTokenSource(fetch)
	f.sources[key] = src
	return src
}

func (f *Factory) withGoogleAdsDefaults(creds googleads.Credentials) googleads.Credentials {
	if creds.DeveloperToken == "" {
		creds.DeveloperToken = f.googleAds.DeveloperToken
	}
	if creds.ClientID == "" {
		creds.ClientID = f.googleAds.OAuthClientID
	}
	if creds.ClientSecret == "" {
		creds.ClientSecret = f.googleAds.OAuthClientSecret
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = f.googleAds.DefaultRefreshToken
	}
	return creds
}

func (f *Factory) withMetaAdsDefaults(creds metaads.Credentials) metaads.Credentials {
	if creds.AccessToken == "" {
		creds.AccessToken = f.metaAds.DefaultToken
	}
	if creds.AppSecret == "" {
		creds.AppSecret = f.metaAds.AppSecret
	}
	return creds
}

func (f *Factory) withAnalyticsDefaults(creds ganalytics.Credentials) ganalytics.Credentials {
	if creds.ClientEmail == "" {
		creds.ClientEmail = f.analytics.ServiceAccountEmail
	}
	if creds.PrivateKey == "" {
		creds.PrivateKey = f.analytics.PrivateKeyPEM()
	}
	return creds
}

func decodeBundle(bundle json.RawMessage, out any) error {
	if len(bundle) == 0 || strings.TrimSpace(string(bundle)) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "credential bundle is required")
	}
	if err := json.Unmarshal(bundle, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode credential bundle")
	}
	return nil
}

func sourceKey(clientID uuid.UUID, platform enums.Platform) string {
	return clientID.String() + "|" + platform.String()
}
