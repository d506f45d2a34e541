package vault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/atlasmedia/adboard-backend/pkg/config"
	pkgerrors "github.com/atlasmedia/adboard-backend/pkg/errors"
)

// blobVersion tags every ciphertext so the key (and algorithm) can be rotated
// without guessing which key sealed an old blob.
const blobVersion = "v1"

// Vault seals and opens per-client platform credential bundles. It is a pure
// transformation over the configured master key; it never touches storage.
type Vault struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// New builds a Vault from the configured master key.
func New(cfg config.VaultConfig) (*Vault, error) {
	key, err := cfg.MasterKeyBytes()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCrypto, err, "vault master key")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCrypto, err, "initialize cipher")
	}
	return &Vault{aead: aead}, nil
}

// Encrypt serializes v to JSON and seals it. Each call uses a fresh nonce, so
// encrypting the same value twice yields different blobs.
func (v *Vault) Encrypt(value any) (string, error) {
	if v == nil || v.aead == nil {
		return "", pkgerrors.New(pkgerrors.CodeCrypto, "vault not configured")
	}
	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeCrypto, err, "serialize credentials")
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeCrypto, err, "generate nonce")
	}

	sealed := v.aead.Seal(nil, nonce, plaintext, []byte(blobVersion))
	payload := append(nonce, sealed...)
	return fmt.Sprintf("%s:%s", blobVersion, base64.StdEncoding.EncodeToString(payload)), nil
}

// Decrypt opens a blob produced by Encrypt and deserializes it into out.
// Malformed, tampered, or unknown-version blobs fail with CRYPTO_ERROR.
func (v *Vault) Decrypt(blob string, out any) error {
	if v == nil || v.aead == nil {
		return pkgerrors.New(pkgerrors.CodeCrypto, "vault not configured")
	}

	version, encoded, found := strings.Cut(blob, ":")
	if !found {
		return pkgerrors.New(pkgerrors.CodeCrypto, "malformed credential blob")
	}
	if version != blobVersion {
		return pkgerrors.New(pkgerrors.CodeCrypto, fmt.Sprintf("unsupported blob version %q", version))
	}

	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeCrypto, err, "decode credential blob")
	}
	if len(payload) <= chacha20poly1305.NonceSizeX {
		return pkgerrors.New(pkgerrors.CodeCrypto, "credential blob too short")
	}

	nonce, sealed := payload[:chacha20poly1305.NonceSizeX], payload[chacha20poly1305.NonceSizeX:]
	plaintext, err := v.aead.Open(nil, nonce, sealed, []byte(blobVersion))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeCrypto, err, "open credential blob")
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeCrypto, err, "deserialize credentials")
	}
	return nil
}
