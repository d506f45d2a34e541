package factory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/atlasmedia/adboard-backend/pkg/config"
	"github.com/atlasmedia/adboard-backend/pkg/db/models"
	"github.com/atlasmedia/adboard-backend/pkg/enums"
	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
	"github.com/atlasmedia/adboard-backend/pkg/platforms/googleads"
	"github.com/atlasmedia/adboard-backend/pkg/platforms/metaads"
)

// stubVault decodes blobs that are plain JSON, standing in for the real
// vault in tests.
type stubVault struct {
	err error
}

func (s *stubVault) Decrypt(blob string, out any) error {
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(blob), out)
}

func testConfig() *config.Config {
	return &config.Config{
		GoogleAds: config.GoogleAdsConfig{
			DeveloperToken:    "app-dev-token",
			OAuthClientID:     "app-oauth-id",
			OAuthClientSecret: "app-oauth-secret",
		},
		MetaAds: config.MetaAdsConfig{
			AppSecret: "app-meta-secret",
		},
	}
}

func searchAdsConnection(clientID uuid.UUID, blob string) *models.PlatformConnection {
	return &models.PlatformConnection{
		ClientID:             clientID,
		Platform:             enums.PlatformSearchAds,
		IdentifierID:         "123-456",
		Connected:            blob != "",
		EncryptedCredentials: blob,
	}
}

func TestForConnectionMissingCredentials(t *testing.T) {
	f := New(&stubVault{}, testConfig())
	clientID := uuid.New()

	_, err := f.ForConnection(clientID, nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeCredentialMissing) {
		t.Fatalf("expected CREDENTIAL_MISSING for nil connection, got %v", err)
	}

	_, err = f.ForConnection(clientID, searchAdsConnection(clientID, ""))
	if !pkgerrors.HasCode(err, pkgerrors.CodeCredentialMissing) {
		t.Fatalf("expected CREDENTIAL_MISSING for empty blob, got %v", err)
	}
}

func TestForConnectionPropagatesVaultError(t *testing.T) {
	vaultErr := pkgerrors.New(pkgerrors.CodeCrypto, "decrypt credential blob")
	f := New(&stubVault{err: vaultErr}, testConfig())
	clientID := uuid.New()

	_, err := f.ForConnection(clientID, searchAdsConnection(clientID, "v1:garbage"))
	if !pkgerrors.HasCode(err, pkgerrors.CodeCrypto) {
		t.Fatalf("expected CRYPTO_ERROR to pass through, got %v", err)
	}
}

func TestForConnectionAppliesConfigDefaults(t *testing.T) {
	f := New(&stubVault{}, testConfig())
	clientID := uuid.New()

	// Bundle carries only the refresh token; oauth app credentials come from
	// config.
	blob := `{"refreshToken":"client-refresh"}`
	adapter, err := f.ForConnection(clientID, searchAdsConnection(clientID, blob))
	if err != nil {
		t.Fatalf("build adapter: %v", err)
	}
	if adapter.Platform() != enums.PlatformSearchAds {
		t.Fatalf("unexpected platform %s", adapter.Platform())
	}
}

func TestForConnectionUnknownPlatform(t *testing.T) {
	f := New(&stubVault{}, testConfig())
	clientID := uuid.New()

	conn := &models.PlatformConnection{
		ClientID:             clientID,
		Platform:             enums.Platform("billboards"),
		EncryptedCredentials: "{}",
	}
	_, err := f.ForConnection(clientID, conn)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestSharedTokenSourcePerConnection(t *testing.T) {
	var tokenCalls int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	}))
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer apiSrv.Close()

	f := New(&stubVault{}, testConfig(), WithGoogleAdsOptions(
		googleads.WithBaseURL(apiSrv.URL),
		googleads.WithTokenURL(tokenSrv.URL),
	))
	clientID := uuid.New()
	conn := searchAdsConnection(clientID, `{"refreshToken":"client-refresh"}`)

	for i := 0; i < 3; i++ {
		adapter, err := f.ForConnection(clientID, conn)
		if err != nil {
			t.Fatalf("build adapter: %v", err)
		}
		if err := adapter.TestConnection(context.Background()); err != nil {
			t.Fatalf("test connection: %v", err)
		}
	}
	if got := atomic.LoadInt32(&tokenCalls); got != 1 {
		t.Fatalf("expected one exchange across rebuilt adapters, got %d", got)
	}

	// Rotation drops the shared source, so the next adapter re-exchanges.
	f.Forget(clientID, enums.PlatformSearchAds)
	adapter, err := f.ForConnection(clientID, conn)
	if err != nil {
		t.Fatalf("build adapter: %v", err)
	}
	if err := adapter.TestConnection(context.Background()); err != nil {
		t.Fatalf("test connection: %v", err)
	}
	if got := atomic.LoadInt32(&tokenCalls); got != 2 {
		t.Fatalf("expected re-exchange after Forget, got %d", got)
	}
}

func TestProbeRunsConnectionTest(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"act_42"}`))
	}))
	defer apiSrv.Close()

	f := New(&stubVault{}, testConfig(), WithMetaAdsOptions(metaads.WithBaseURL(apiSrv.URL)))

	bundle := json.RawMessage(`{"accessToken":"probe-token"}`)
	if err := f.Probe(context.Background(), enums.PlatformSocialAds, "42", bundle); err != nil {
		t.Fatalf("probe: %v", err)
	}
}

func TestProbeRejectsEmptyBundle(t *testing.T) {
	f := New(&stubVault{}, testConfig())

	err := f.Probe(context.Background(), enums.PlatformSocialAds, "42", nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}

	err = f.Probe(context.Background(), enums.Platform("billboards"), "42", json.RawMessage(`{}`))
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR for unknown platform, got %v", err)
	}
}

func TestProbeIncompleteBundleIsValidationError(t *testing.T) {
	f := New(&stubVault{}, testConfig())

	tests := []struct {
		name     string
		platform enums.Platform
		bundle   json.RawMessage
	}{
		{"social ads without token", enums.PlatformSocialAds, json.RawMessage(`{}`)},
		{"search ads without refresh token", enums.PlatformSearchAds, json.RawMessage(`{}`)},
	}

	for _, tt := range tests {
		err := f.Probe(context.Background(), tt.platform, "42", tt.bundle)
		if err == nil {
			t.Fatalf("%s: expected probe failure", tt.name)
		}
		if got := pkgerrors.CodeOf(err); got != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected VALIDATION_ERROR, got %s (%v)", tt.name, got, err)
		}
	}
}

func TestProbeFailureSurfacesUpstreamError(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer apiSrv.Close()

	f := New(&stubVault{}, testConfig(), WithMetaAdsOptions(metaads.WithBaseURL(apiSrv.URL)))

	err := f.Probe(context.Background(), enums.PlatformSocialAds, "42", json.RawMessage(`{"accessToken":"bad"}`))
	if err == nil {
		t.Fatal("expected probe failure")
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeAuth) {
		t.Fatalf("expected AUTH_ERROR, got %v", err)
	}
}

func TestStubVaultDecodeError(t *testing.T) {
	f := New(&stubVault{err: errors.New("boom")}, testConfig())
	clientID := uuid.New()

	_, err := f.ForConnection(clientID, searchAdsConnection(clientID, "blob"))
	if err == nil {
		t.Fatal("expected error from vault")
	}
}
