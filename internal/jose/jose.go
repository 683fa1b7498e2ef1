// Package jose implements the JWS/JWT primitive layer of spec.md §4.1:
// signing, verifying, and unverified inspection of compact-serialized
// signed tokens, over the algorithm family RS256, PS256, ES256, ES384,
// ES512, and EdDSA.
//
// Grounded on _examples/tgeoghegan-oidf-box/entity/entity.go's
// ValidateEntityConfiguration, which parses the JWS untrusted to recover
// the self-asserted jwks before verifying against it — the same two-pass
// shape this package generalizes to also accept a caller-supplied JWKS.
package jose

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	josepkg "github.com/go-jose/go-jose/v4"
)

// Distinct error values per spec.md §4.1 "Failure semantics" — signature
// failures must never be confused with temporal failures, since
// internal/trustmark's Status operation branches on exactly this
// distinction.
var (
	ErrMissingKID           = errors.New("jose: header missing kid")
	ErrUnknownKID           = errors.New("jose: kid not found in key set")
	ErrUnsupportedAlgorithm = errors.New("jose: unsupported algorithm")
	ErrSignatureInvalid     = errors.New("jose: signature invalid")
	ErrExpired              = errors.New("jose: token expired")
	ErrMalformed            = errors.New("jose: malformed token")
)

// SupportedAlgorithms is the exact algorithm family spec.md §2/§4.1 names.
var SupportedAlgorithms = []josepkg.SignatureAlgorithm{
	josepkg.RS256, josepkg.PS256, josepkg.ES256, josepkg.ES384, josepkg.ES512, josepkg.EdDSA,
}

// Header is the subset of JWS header fields this layer inspects.
type Header struct {
	Algorithm string `json:"alg"`
	KeyID     string `json:"kid"`
	Type      string `json:"typ"`
}

// temporalClaims is the subset of standard claims Verify checks.
type temporalClaims struct {
	Expiration int64 `json:"exp"`
}

// ExtractUnverified splits token on its two dots and decodes the header
// and payload without any signature check. It rejects any token that does
// not have exactly three dot-separated parts.
func ExtractUnverified(token string) (Header, json.RawMessage, error) {
	jws, err := josepkg.ParseSignedCompact(token, SupportedAlgorithms)
	if err != nil {
		return Header{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(jws.Signatures) != 1 {
		return Header{}, nil, fmt.Errorf("%w: expected exactly one signature", ErrMalformed)
	}
	sig := jws.Signatures[0]

	hdr := Header{
		Algorithm: string(sig.Header.Algorithm),
		KeyID:     sig.Header.KeyID,
	}
	if typ, ok := sig.Header.ExtraHeaders[josepkg.HeaderType]; ok {
		if s, ok := typ.(string); ok {
			hdr.Type = s
		}
	}

	return hdr, json.RawMessage(jws.UnsafePayloadWithoutVerification()), nil
}

// Verify verifies token's signature. If keys is nil, the payload's own
// "jwks" claim is used (self-verification of an entity configuration);
// otherwise keys is the issuer's JWKS the token must verify against.
// On success, the exp claim is validated against now.
func Verify(token string, keys *josepkg.JSONWebKeySet, now time.Time) (Header, json.RawMessage, error) {
	jws, err := josepkg.ParseSigned(token, SupportedAlgorithms)
	if err != nil {
		return Header{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(jws.Signatures) != 1 {
		return Header{}, nil, fmt.Errorf("%w: expected exactly one signature", ErrMalformed)
	}
	sig := jws.Signatures[0]

	hdr := Header{
		Algorithm: string(sig.Header.Algorithm),
		KeyID:     sig.Header.KeyID,
	}
	if typ, ok := sig.Header.ExtraHeaders[josepkg.HeaderType]; ok {
		if s, ok := typ.(string); ok {
			hdr.Type = s
		}
	}

	if !supportedAlgorithm(sig.Header.Algorithm) {
		return Header{}, nil, ErrUnsupportedAlgorithm
	}
	if hdr.KeyID == "" {
		return Header{}, nil, ErrMissingKID
	}

	verificationKeys := keys
	if verificationKeys == nil {
		// Self-verification: recover the jwks from the untrusted payload.
		var untrusted struct {
			JWKS josepkg.JSONWebKeySet `json:"jwks"`
		}
		if err := json.Unmarshal(jws.UnsafePayloadWithoutVerification(), &untrusted); err != nil {
			return Header{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		verificationKeys = &untrusted.JWKS
	}

	matches := verificationKeys.Key(hdr.KeyID)
	if len(matches) == 0 {
		return Header{}, nil, ErrUnknownKID
	}

	payload, err := jws.Verify(matches[0].Key)
	if err != nil {
		return Header{}, nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	var claims temporalClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Header{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.Expiration != 0 && now.Unix() >= claims.Expiration {
		return Header{}, nil, ErrExpired
	}

	return hdr, json.RawMessage(payload), nil
}

func supportedAlgorithm(alg josepkg.SignatureAlgorithm) bool {
	for _, a := range SupportedAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}

// Sign signs payload with key under its own declared algorithm, setting
// typ (defaulting to "JWT") and kid in the header. For Ed25519/Ed448 keys,
// the JOSE-level algorithm is normalized to EdDSA while the signing
// material retains its curve, per spec.md §4.1.
func Sign(payload []byte, key josepkg.JSONWebKey, typ string) (string, error) {
	if typ == "" {
		typ = "JWT"
	}
	alg := josepkg.SignatureAlgorithm(key.Algorithm)
	if alg == "Ed25519" || alg == "Ed448" {
		alg = josepkg.EdDSA
	}
	if alg == "" {
		return "", fmt.Errorf("jose: signing key has no alg")
	}
	if key.KeyID == "" {
		return "", fmt.Errorf("jose: signing key has no kid")
	}

	signer, err := josepkg.NewSigner(josepkg.SigningKey{
		Algorithm: alg,
		Key:       key.Key,
	}, &josepkg.SignerOptions{
		ExtraHeaders: map[josepkg.HeaderKey]interface{}{
			josepkg.HeaderType: typ,
			"kid":              key.KeyID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("jose: construct signer: %w", err)
	}

	signed, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("jose: sign: %w", err)
	}
	return signed.CompactSerialize()
}
