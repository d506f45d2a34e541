package vault

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasmedia/adboard-backend/pkg/config"
	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
)

type testBundle struct {
	RefreshToken string `json:"refreshToken"`
	ClientSecret string `json:"clientSecret"`
}

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	v, err := New(config.VaultConfig{MasterKey: key})
	require.NoError(t, err)
	return v
}

func TestNewRejectsMissingKey(t *testing.T) {
	_, err := New(config.VaultConfig{})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeCrypto))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t)
	in := testBundle{RefreshToken: "1//refresh", ClientSecret: "s3cret"}

	blob, err := v.Encrypt(in)
	require.NoError(t, err)

	var out testBundle
	require.NoError(t, v.Decrypt(blob, &out))
	assert.Equal(t, in, out)
}

func TestEncryptOutputNeverEqualsPlaintext(t *testing.T) {
	v := newTestVault(t)
	in := testBundle{RefreshToken: "1//refresh", ClientSecret: "s3cret"}
	serialized, err := json.Marshal(in)
	require.NoError(t, err)

	blob, err := v.Encrypt(in)
	require.NoError(t, err)

	assert.NotEqual(t, string(serialized), blob)
	assert.NotContains(t, blob, "s3cret")
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	v := newTestVault(t)
	in := testBundle{RefreshToken: "1//refresh"}

	first, err := v.Encrypt(in)
	require.NoError(t, err)
	second, err := v.Encrypt(in)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	var a, b testBundle
	require.NoError(t, v.Decrypt(first, &a))
	require.NoError(t, v.Decrypt(second, &b))
	assert.Equal(t, a, b)
}

func TestDecryptRejectsTamperedBlob(t *testing.T) {
	v := newTestVault(t)
	blob, err := v.Encrypt(testBundle{RefreshToken: "1//refresh"})
	require.NoError(t, err)

	version, encoded, _ := strings.Cut(blob, ":")
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := version + ":" + base64.StdEncoding.EncodeToString(raw)

	var out testBundle
	err = v.Decrypt(tampered, &out)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeCrypto))
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	v := newTestVault(t)
	var out testBundle

	for _, blob := range []string{"", "not-a-blob", "v2:AAAA", "v1:%%%", "v1:AAAA"} {
		err := v.Decrypt(blob, &out)
		require.Error(t, err, "blob %q", blob)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeCrypto), "blob %q", blob)
	}
}

func TestDecryptRejectsForeignKey(t *testing.T) {
	v := newTestVault(t)
	blob, err := v.Encrypt(testBundle{RefreshToken: "1//refresh"})
	require.NoError(t, err)

	otherKey := base64.StdEncoding.EncodeToString([]byte("ffffffffffffffffffffffffffffffff"))
	other, err := New(config.VaultConfig{MasterKey: otherKey})
	require.NoError(t, err)

	var out testBundle
	err = other.Decrypt(blob, &out)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeCrypto))
}
