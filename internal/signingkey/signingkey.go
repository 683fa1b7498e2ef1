// Package signingkey encapsulates the process-wide signing key Design
// Note 2 describes: loaded once at startup, never mutated in place, and
// exposed to signing sites only through a read-only Handle rather than a
// true global variable.
//
// Grounded on _examples/Mindburn-Labs-helm/core/pkg/identity/keyset.go's
// KeySet/InMemoryKeySet rotation pattern: a mutex-guarded current key id
// plus a map of retained keys, with Rotate() swapping the current id
// without discarding prior keys — here retained specifically so
// historical_keys (spec.md §3) can serve key-rotation queries.
package signingkey

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/go-jose/go-jose/v4"
)

// Handle is a read-only view onto the active signing key, safe for
// concurrent use. Construct with New; rotate with Rotate.
type Handle struct {
	mu         sync.RWMutex
	currentKID string
	keys       map[string]jose.JSONWebKey // private keys, by kid
	order      []string                   // kid history, oldest first
}

// New constructs a Handle from an existing private JWK, as loaded from the
// startup key file (spec.md §6 "Private signing key").
func New(private jose.JSONWebKey) (*Handle, error) {
	if private.KeyID == "" {
		return nil, fmt.Errorf("signingkey: key has no kid")
	}
	h := &Handle{
		keys: make(map[string]jose.JSONWebKey),
	}
	h.keys[private.KeyID] = private
	h.order = append(h.order, private.KeyID)
	h.currentKID = private.KeyID
	return h, nil
}

// GenerateEd25519 creates a fresh Handle with a freshly generated Ed25519
// key, for tests and for bootstrapping a development server.
func GenerateEd25519() (*Handle, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	jwk := jose.JSONWebKey{Key: priv, Algorithm: string(jose.EdDSA)}
	kid, err := thumbprintKID(jose.JSONWebKey{Key: pub})
	if err != nil {
		return nil, err
	}
	jwk.KeyID = kid
	return New(jwk)
}

func thumbprintKID(pub jose.JSONWebKey) (string, error) {
	tp, err := pub.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}

// Current returns the active signing key.
func (h *Handle) Current() jose.JSONWebKey {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.keys[h.currentKID]
}

// Sign signs payload under the currently active key.
func (h *Handle) Sign(payload []byte, typ string) (string, error) {
	key := h.Current()
	return signWithGoJose(payload, key, typ)
}

// PublicJWKS returns the public form of every key this handle has ever
// held, oldest first — the "historical_keys" signed JWK-set token's
// source material (spec.md §3).
func (h *Handle) PublicJWKS() jose.JSONWebKeySet {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := jose.JSONWebKeySet{}
	for _, kid := range h.order {
		set.Keys = append(set.Keys, h.keys[kid].Public())
	}
	return set
}

// CurrentPublicJWKS returns only the active key's public form, the set an
// entity configuration's "jwks" claim advertises.
func (h *Handle) CurrentPublicJWKS() jose.JSONWebKeySet {
	cur := h.Current()
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{cur.Public()}}
}

// Rotate generates a new key for alg (ES256, ES384, ES512 or EdDSA; any
// other value yields an Ed25519 key with alg EdDSA) and makes it current,
// retaining the outgoing
// key so PublicJWKS/historical_keys queries continue to validate tokens
// signed before the rotation. This is the supplemental "key-rotation-aware
// historical_keys" feature of SPEC_FULL.md §5.3.
func (h *Handle) Rotate(alg jose.SignatureAlgorithm) error {
	newKey, err := generateKey(alg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys[newKey.KeyID] = newKey
	h.order = append(h.order, newKey.KeyID)
	h.currentKID = newKey.KeyID
	return nil
}

func generateKey(alg jose.SignatureAlgorithm) (jose.JSONWebKey, error) {
	var priv interface{}
	var err error

	switch alg {
	case jose.ES256:
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case jose.ES384:
		priv, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case jose.ES512:
		priv, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case jose.EdDSA:
		_, sk, genErr := ed25519.GenerateKey(rand.Reader)
		priv, err = sk, genErr
	default:
		_, sk, genErr := ed25519.GenerateKey(rand.Reader)
		priv, err = sk, genErr
		alg = jose.EdDSA
	}
	if err != nil {
		return jose.JSONWebKey{}, err
	}

	jwk := jose.JSONWebKey{Key: priv, Algorithm: string(alg)}
	pub := jwk.Public()
	kid, err := thumbprintKID(pub)
	if err != nil {
		return jose.JSONWebKey{}, err
	}
	jwk.KeyID = kid
	return jwk, nil
}

func signWithGoJose(payload []byte, key jose.JSONWebKey, typ string) (string, error) {
	if typ == "" {
		typ = "JWT"
	}
	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.SignatureAlgorithm(key.Algorithm),
		Key:       key.Key,
	}, &jose.SignerOptions{
		ExtraHeaders: map[jose.HeaderKey]interface{}{
			jose.HeaderType: typ,
			"kid":           key.KeyID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("signingkey: construct signer: %w", err)
	}
	signed, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("signingkey: sign: %w", err)
	}
	return signed.CompactSerialize()
}
