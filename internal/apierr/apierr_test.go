package apierr_test

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sunet/inmor-go/internal/apierr"
)

func TestNotFoundWritesExactVocabulary(t *testing.T) {
	rec := httptest.NewRecorder()
	apierr.NotFound(rec, "no such entity")

	require.Equal(t, 404, rec.Code)
	var body apierr.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, apierr.CodeNotFound, body.Error)
	require.Equal(t, "no such entity", body.ErrorDescription)
}

func TestInvalidTrustChainIs400(t *testing.T) {
	rec := httptest.NewRecorder()
	apierr.InvalidTrustChain(rec, "no path to anchor")
	require.Equal(t, 400, rec.Code)

	var body apierr.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, apierr.CodeInvalidTrustChain, body.Error)
}

func TestUnsupportedParameterIs400(t *testing.T) {
	rec := httptest.NewRecorder()
	apierr.UnsupportedParameter(rec, "sub is required")
	require.Equal(t, 400, rec.Code)

	var body apierr.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, apierr.CodeUnsupportedParam, body.Error)
}

func TestInternalNeverEchoesErrorDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	apierr.Internal(rec, errors.New("a secret internal detail"))
	require.Equal(t, 500, rec.Code)

	var body apierr.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, apierr.CodeServerError, body.Error)
	require.NotContains(t, body.ErrorDescription, "secret internal detail")
}
