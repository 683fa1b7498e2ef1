package trustmark_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sunet/inmor-go/internal/signingkey"
	"github.com/sunet/inmor-go/internal/store"
	"github.com/sunet/inmor-go/internal/trustmark"
)

type markClaims struct {
	Issuer        string `json:"iss"`
	Subject       string `json:"sub"`
	TrustMarkType string `json:"trust_mark_type"`
	IssuedAt      int64  `json:"iat"`
	Expiration    int64  `json:"exp"`
}

func issueMark(t *testing.T, ta *signingkey.Handle, subject, trustMarkType string, exp time.Time) string {
	t.Helper()
	now := time.Now()
	payload, err := json.Marshal(markClaims{
		Issuer:        "https://ta.example",
		Subject:       subject,
		TrustMarkType: trustMarkType,
		IssuedAt:      now.Unix(),
		Expiration:    exp.Unix(),
	})
	require.NoError(t, err)
	token, err := ta.Sign(payload, "trust-mark+jwt")
	require.NoError(t, err)
	return token
}

// TestTrustMarkStatusScenario is scenario S5: query an active mark, revoke
// it, and see the status flip without losing the issued token.
func TestTrustMarkStatusScenario(t *testing.T) {
	ta, err := signingkey.GenerateEd25519()
	require.NoError(t, err)

	st := store.NewMemStore()
	svc := trustmark.New(st)

	token := issueMark(t, ta, "https://rp.example", "https://refeds.org/sirtfi", time.Now().Add(time.Hour))
	require.NoError(t, svc.Issue(t.Context(), token, trustmark.Claims{
		Subject: "https://rp.example", TrustMarkType: "https://refeds.org/sirtfi",
	}))

	jwks := ta.PublicJWKS()
	status, claims, err := svc.Status(t.Context(), token, &jwks)
	require.NoError(t, err)
	require.Equal(t, trustmark.StatusActive, status)
	require.Equal(t, "https://rp.example", claims.Subject)

	require.NoError(t, svc.Revoke(t.Context(), "https://rp.example", "https://refeds.org/sirtfi"))
	status, _, err = svc.Status(t.Context(), token, &jwks)
	require.NoError(t, err)
	require.Equal(t, trustmark.StatusRevoked, status)

	// Query still returns the original token even after revocation.
	queried, err := svc.Query(t.Context(), "https://rp.example", "https://refeds.org/sirtfi")
	require.NoError(t, err)
	require.Equal(t, token, queried)
}

func TestTrustMarkStatusUnknownToken(t *testing.T) {
	ta, err := signingkey.GenerateEd25519()
	require.NoError(t, err)
	st := store.NewMemStore()
	svc := trustmark.New(st)

	token := issueMark(t, ta, "https://rp.example", "https://refeds.org/sirtfi", time.Now().Add(time.Hour))
	jwks := ta.PublicJWKS()
	_, _, err = svc.Status(t.Context(), token, &jwks)
	require.ErrorIs(t, err, trustmark.ErrUnknownMark)
}

func TestTrustMarkStatusExpiredDistinctFromInvalid(t *testing.T) {
	ta, err := signingkey.GenerateEd25519()
	require.NoError(t, err)
	st := store.NewMemStore()
	svc := trustmark.New(st)

	expiredToken := issueMark(t, ta, "https://rp.example", "https://refeds.org/sirtfi", time.Now().Add(-time.Hour))
	require.NoError(t, svc.Issue(t.Context(), expiredToken, trustmark.Claims{
		Subject: "https://rp.example", TrustMarkType: "https://refeds.org/sirtfi",
	}))

	jwks := ta.PublicJWKS()
	status, _, err := svc.Status(t.Context(), expiredToken, &jwks)
	require.NoError(t, err)
	require.Equal(t, trustmark.StatusExpired, status)
}

func TestTrustMarkStatusInvalidSignature(t *testing.T) {
	ta, err := signingkey.GenerateEd25519()
	require.NoError(t, err)
	other, err := signingkey.GenerateEd25519()
	require.NoError(t, err)

	st := store.NewMemStore()
	svc := trustmark.New(st)

	token := issueMark(t, ta, "https://rp.example", "https://refeds.org/sirtfi", time.Now().Add(time.Hour))
	require.NoError(t, svc.Issue(t.Context(), token, trustmark.Claims{
		Subject: "https://rp.example", TrustMarkType: "https://refeds.org/sirtfi",
	}))

	wrongJWKS := other.PublicJWKS()
	status, _, err := svc.Status(t.Context(), token, &wrongJWKS)
	require.NoError(t, err)
	require.Equal(t, trustmark.StatusInvalid, status)
}

func TestTrustMarkListNarrowsToSubject(t *testing.T) {
	ta, err := signingkey.GenerateEd25519()
	require.NoError(t, err)
	st := store.NewMemStore()
	svc := trustmark.New(st)

	token := issueMark(t, ta, "https://rp.example", "https://refeds.org/sirtfi", time.Now().Add(time.Hour))
	require.NoError(t, svc.Issue(t.Context(), token, trustmark.Claims{
		Subject: "https://rp.example", TrustMarkType: "https://refeds.org/sirtfi",
	}))

	all, err := svc.List(t.Context(), "https://refeds.org/sirtfi", "")
	require.NoError(t, err)
	require.Contains(t, all, "https://rp.example")

	_, err = svc.List(t.Context(), "https://refeds.org/sirtfi", "https://unknown.example")
	require.ErrorIs(t, err, store.ErrNotFound)
}
