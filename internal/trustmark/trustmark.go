// Package trustmark implements the trust mark query and status operations
// of spec.md §4.5: listing marks a trust anchor has issued, fetching a
// specific mark, and resolving a submitted mark's status (active, revoked,
// or expired) against the tm_alltime membership witness and the issuer's
// own registry, without re-verifying against a live fetch.
package trustmark

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	josepkg "github.com/go-jose/go-jose/v4"

	"github.com/sunet/inmor-go/internal/jose"
	"github.com/sunet/inmor-go/internal/store"
)

// Status is the result of a trust_mark_status query (spec.md §6
// "/trust_mark_status").
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
	StatusInvalid Status = "invalid"
)

// RevokedMarker is the literal sentinel value spec.md §4.5 says tm[sub][type]
// holds once a mark has been revoked, in place of the issued token.
const RevokedMarker = "revoked"

// ErrUnknownMark is returned when a submitted token's SHA-256 is not a
// member of tm_alltime — this server never issued it.
var ErrUnknownMark = errors.New("trustmark: token not found in issuance witness")

// Claims is the subset of a trust mark token's payload this package reads.
type Claims struct {
	Issuer        string `json:"iss"`
	Subject       string `json:"sub"`
	TrustMarkType string `json:"trust_mark_type"`
	IssuedAt      int64  `json:"iat"`
	Expiration    int64  `json:"exp"`
}

// Service answers trust mark queries against a Store.
type Service struct {
	Store store.Store
	Now   func() time.Time
}

// New constructs a Service.
func New(s store.Store) *Service {
	return &Service{Store: s, Now: time.Now}
}

// Query returns the signed trust mark token last issued to subject for
// trustMarkType, or store.ErrNotFound if absent (spec.md §4.5 "query").
func (s *Service) Query(ctx context.Context, subject, trustMarkType string) (string, error) {
	rec, err := s.Store.TrustMark(ctx, subject, trustMarkType)
	if err != nil {
		return "", err
	}
	return rec.Token, nil
}

// List returns tmtype[trustMarkType]'s subjects, narrowed to a singleton
// if subject is supplied and present, or store.ErrNotFound if subject is
// supplied but absent (spec.md §4.5 "list").
func (s *Service) List(ctx context.Context, trustMarkType, subject string) ([]string, error) {
	recs, err := s.Store.TrustMarksByType(ctx, trustMarkType)
	if err != nil {
		return nil, err
	}
	subjects := make([]string, 0, len(recs))
	for _, rec := range recs {
		subjects = append(subjects, rec.Subject)
	}
	if subject == "" {
		return subjects, nil
	}
	for _, subj := range subjects {
		if subj == subject {
			return []string{subj}, nil
		}
	}
	return nil, store.ErrNotFound
}

// Status implements spec.md §4.5 "status": compute SHA-256 of the
// submitted token; if absent from tm_alltime, ErrUnknownMark. Otherwise
// verify the token against the trust anchor's own public JWKS: a failure
// on the temporal claim alone reports expired, any other verification
// failure reports invalid, and otherwise the status is read from the
// issuer's tm[sub][type] entry — a record with Revoked set means revoked;
// any other record, or no record at all, means active.
func (s *Service) Status(ctx context.Context, token string, anchorJWKS *josepkg.JSONWebKeySet) (Status, Claims, error) {
	hash := sha256Hex(token)
	known, err := s.Store.TrustMarkHashKnown(ctx, hash)
	if err != nil {
		return "", Claims{}, fmt.Errorf("trustmark: status: %w", err)
	}
	if !known {
		return "", Claims{}, ErrUnknownMark
	}

	_, payload, verifyErr := jose.Verify(token, anchorJWKS, s.Now())

	var claims Claims
	if _, rawPayload, extractErr := jose.ExtractUnverified(token); extractErr == nil {
		_ = json.Unmarshal(rawPayload, &claims)
	}
	if verifyErr == nil {
		_ = json.Unmarshal(payload, &claims)
	}

	switch {
	case verifyErr == nil:
		// fall through to registry lookup below
	case errors.Is(verifyErr, jose.ErrExpired):
		return StatusExpired, claims, nil
	default:
		return StatusInvalid, claims, nil
	}

	rec, err := s.Store.TrustMark(ctx, claims.Subject, claims.TrustMarkType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return StatusActive, claims, nil
		}
		return "", claims, fmt.Errorf("trustmark: status: registry lookup: %w", err)
	}
	if rec.Revoked {
		return StatusRevoked, claims, nil
	}
	return StatusActive, claims, nil
}

// Issue records a new trust mark for subject. Not itself part of spec.md
// §4.5 (issuance workflows are an explicit non-goal); exists so tests and
// out-of-band provisioning tooling can populate the registry a resolve or
// trust_mark_status call later reads.
func (s *Service) Issue(ctx context.Context, token string, claims Claims) error {
	return s.Store.PutTrustMark(ctx, store.TrustMarkRecord{
		Token:      token,
		Subject:    claims.Subject,
		TrustMark:  claims.TrustMarkType,
		IssuedAt:   claims.IssuedAt,
		Expiration: claims.Expiration,
	})
}

// Revoke marks subject's trustMarkType issuance as revoked without erasing
// its history, so Query/List still surface the token while Status reports
// StatusRevoked — an in-model equivalent of overwriting tm[sub][type] with
// RevokedMarker that preserves the original token for audit.
func (s *Service) Revoke(ctx context.Context, subject, trustMarkType string) error {
	rec, err := s.Store.TrustMark(ctx, subject, trustMarkType)
	if err != nil {
		return err
	}
	rec.Revoked = true
	return s.Store.PutTrustMark(ctx, rec)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
