package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/techpack/backend/internal/infrastructure/telemetry"
)

func TestTracerProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled is a no-op", func(t *testing.T) {
		tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{ServiceName: "techpack-test"}, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.False(t, tp.IsEnabled())
		assert.NotNil(t, tp.Tracer("test"))

		tp.EnableSpanProfiles()
		assert.False(t, tp.SpanProfilesEnabled())
		assert.NoError(t, tp.ForceFlush(ctx))
		assert.NoError(t, tp.Shutdown(ctx))
	})

	t.Run("nil logger", func(t *testing.T) {
		tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{}, nil)
		require.NoError(t, err)
		assert.False(t, tp.IsEnabled())
	})

	t.Run("enabled", func(t *testing.T) {
		if testing.Short() {
			t.Skip("exporter setup skipped in short mode")
		}
		tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
			Enabled:           true,
			CollectorEndpoint: "localhost:14317",
			SamplingRatio:     0.5,
			ServiceName:       "techpack-test",
			Insecure:          true,
		}, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.True(t, tp.IsEnabled())

		tp.EnableSpanProfiles()
		tp.EnableSpanProfiles()
		assert.True(t, tp.SpanProfilesEnabled())
		_ = tp.Shutdown(ctx)
	})
}

func TestMeterProvider(t *testing.T) {
	ctx := context.Background()

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{ServiceName: "techpack-test"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())

	counter, err := telemetry.NewCounter(mp.Meter("test"), "techpack.noop", "no-op counter", "1")
	require.NoError(t, err)
	counter.Inc(ctx, telemetry.AttrRequestClass.String("single"))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestLoggerProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled returns a nop core", func(t *testing.T) {
		lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{ServiceName: "techpack-test"}, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.False(t, lp.IsEnabled())
		assert.False(t, lp.Core(zapcore.DebugLevel).Enabled(zapcore.ErrorLevel))
		assert.NoError(t, lp.Shutdown(ctx))
	})

	t.Run("nil provider", func(t *testing.T) {
		var lp *telemetry.LoggerProvider
		assert.False(t, lp.IsEnabled())
		assert.False(t, lp.Core(zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))
	})

	t.Run("core filters by level", func(t *testing.T) {
		if testing.Short() {
			t.Skip("exporter setup skipped in short mode")
		}
		lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
			Enabled:           true,
			CollectorEndpoint: "localhost:14317",
			ServiceName:       "techpack-test",
			Insecure:          true,
		}, zaptest.NewLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = lp.Shutdown(ctx) })

		core := lp.Core(zapcore.WarnLevel)
		assert.False(t, core.Enabled(zapcore.InfoLevel))
		assert.True(t, core.Enabled(zapcore.ErrorLevel))
		assert.False(t, core.With(nil).Enabled(zapcore.DebugLevel))
	})
}

func TestProfiler(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		p, err := telemetry.NewProfiler(telemetry.ProfilerConfig{}, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.False(t, p.IsEnabled())
		assert.NoError(t, p.Stop())
		assert.NoError(t, p.Stop())
	})

	t.Run("requires server address and application name", func(t *testing.T) {
		_, err := telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: true, ApplicationName: "techpack"}, nil)
		assert.ErrorContains(t, err, "server address")

		_, err = telemetry.NewProfiler(telemetry.ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, nil)
		assert.ErrorContains(t, err, "application name")
	})
}
