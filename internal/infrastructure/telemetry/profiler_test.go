package telemetry

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/postcard/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProfiler(t *testing.T) {
	t.Run("disabled profiler is a no-op", func(t *testing.T) {
		p, err := NewProfiler(config.ProfilingConfig{}, nil)
		require.NoError(t, err)
		assert.False(t, p.IsEnabled())
		assert.NoError(t, p.Stop(context.Background()))
		assert.NoError(t, p.Stop(context.Background()))
	})

	t.Run("enabled without server address", func(t *testing.T) {
		_, err := NewProfiler(config.ProfilingConfig{Enabled: true}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server address")
	})

	t.Run("unknown profile type", func(t *testing.T) {
		_, err := NewProfiler(config.ProfilingConfig{
			Enabled:       true,
			ServerAddress: "http://pyroscope:4040",
			ProfileTypes:  []string{"cpu", "heap"},
		}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"heap"`)
	})
}

func TestParseProfileTypes(t *testing.T) {
	types, err := parseProfileTypes([]string{"cpu", "mutex"})
	require.NoError(t, err)
	assert.Len(t, types, 3, "mutex expands to count and duration")
}

func TestWithProfilingLabels(t *testing.T) {
	var operation, mailClass string
	var empty bool
	WithProfilingLabels(context.Background(), map[string]string{
		ProfilingLabelOperation: "dispatch",
		ProfilingLabelMailClass: "first_class",
		ProfilingLabelTenantID:  "",
	}, func(ctx context.Context) {
		operation, _ = pprof.Label(ctx, ProfilingLabelOperation)
		mailClass, _ = pprof.Label(ctx, ProfilingLabelMailClass)
		_, set := pprof.Label(ctx, ProfilingLabelTenantID)
		empty = !set
	})

	assert.Equal(t, "dispatch", operation)
	assert.Equal(t, "first_class", mailClass)
	assert.True(t, empty, "empty values are not attached")

	ran := false
	WithProfilingLabels(context.Background(), nil, func(context.Context) { ran = true })
	assert.True(t, ran)
}

func TestLabelPairs(t *testing.T) {
	long := strings.Repeat("a", MaxLabelValueLength-1) + "é"
	pairs := labelPairs(map[string]string{"operation": "dispatch", "region": long, "": "x"})

	require.Len(t, pairs, 4)
	assert.Equal(t, []string{"operation", "dispatch", "region"}, pairs[:3], "keys are sorted")
	assert.Len(t, pairs[3], MaxLabelValueLength-1)
	assert.True(t, utf8.ValidString(pairs[3]))
}

func TestProviders_ProfileSpansDisabled(t *testing.T) {
	p, err := NewProviders(context.Background(), config.TelemetryConfig{}, nil)
	require.NoError(t, err)
	assert.NotPanics(t, p.ProfileSpans)
}
