package signingkey_test

import (
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"

	"github.com/sunet/inmor-go/internal/signingkey"
)

func TestGenerateEd25519HasKeyID(t *testing.T) {
	h, err := signingkey.GenerateEd25519()
	require.NoError(t, err)
	require.NotEmpty(t, h.Current().KeyID)
	require.Equal(t, string(jose.EdDSA), h.Current().Algorithm)
}

func TestSignProducesVerifiableToken(t *testing.T) {
	h, err := signingkey.GenerateEd25519()
	require.NoError(t, err)

	token, err := h.Sign([]byte(`{"hello":"world"}`), "JWT")
	require.NoError(t, err)

	jwks := h.PublicJWKS()
	parsed, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.EdDSA})
	require.NoError(t, err)
	payload, err := parsed.Verify(jwks.Keys[0].Public())
	require.NoError(t, err)
	require.JSONEq(t, `{"hello":"world"}`, string(payload))
}

func TestRotateRetainsOutgoingKey(t *testing.T) {
	h, err := signingkey.GenerateEd25519()
	require.NoError(t, err)
	firstKID := h.Current().KeyID

	require.NoError(t, h.Rotate(jose.EdDSA))
	secondKID := h.Current().KeyID
	require.NotEqual(t, firstKID, secondKID)

	jwks := h.PublicJWKS()
	require.Len(t, jwks.Keys, 2)

	found := map[string]bool{}
	for _, k := range jwks.Keys {
		found[k.KeyID] = true
	}
	require.True(t, found[firstKID])
	require.True(t, found[secondKID])
}

func TestCurrentPublicJWKSOnlyHoldsActiveKey(t *testing.T) {
	h, err := signingkey.GenerateEd25519()
	require.NoError(t, err)
	require.NoError(t, h.Rotate(jose.EdDSA))

	cur := h.CurrentPublicJWKS()
	require.Len(t, cur.Keys, 1)
	require.Equal(t, h.Current().KeyID, cur.Keys[0].KeyID)
}
