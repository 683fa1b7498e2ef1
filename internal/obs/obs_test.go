package obs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sunet/inmor-go/internal/obs"
)

// Exercising the full OTLP export path needs a live collector, so these
// tests stick to the parts reachable without one: the disabled no-init
// path and TrackOperation's span/metric bookkeeping against a Provider
// that never got real exporters wired up.

func TestDefaultConfigIsEnabledWithSaneDefaults(t *testing.T) {
	cfg := obs.DefaultConfig()
	require.True(t, cfg.Enabled)
	require.Equal(t, "inmor-federation", cfg.ServiceName)
	require.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.SampleRate)
}

func TestNewWithDisabledConfigSkipsExporterInit(t *testing.T) {
	provider, err := obs.New(t.Context(), &obs.Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, provider)
}

func TestNewWithEnabledConfigNeedsNoCollector(t *testing.T) {
	// With exporters enabled, dialing a real OTLP endpoint is lazy in
	// otlptracegrpc.New (it does not block on connection), so this should
	// not fail even without a collector.
	provider, err := obs.New(t.Context(), &obs.Config{OTLPEndpoint: "localhost:4317", Insecure: true, SampleRate: 1.0, Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NoError(t, provider.Shutdown(t.Context()))
}

func TestTrackOperationOnDisabledProviderDoesNotPanic(t *testing.T) {
	provider, err := obs.New(t.Context(), &obs.Config{Enabled: false})
	require.NoError(t, err)

	ctx, done := provider.TrackOperation(t.Context(), "http.resolve")
	require.NotNil(t, ctx)
	done(nil)
	done(errors.New("second call records an error path, also must not panic"))
}

func TestShutdownOnDisabledProviderIsNoOp(t *testing.T) {
	provider, err := obs.New(t.Context(), &obs.Config{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, provider.Shutdown(t.Context()))
}
