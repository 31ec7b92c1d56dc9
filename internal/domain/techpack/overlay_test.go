package techpack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayComposer_DeriveWatermark(t *testing.T) {
	composer := NewOverlayComposer()

	tests := []struct {
		stage     LifecycleStage
		wantText  string
		wantColor string
	}{
		{StageConcept, "DRAFT", "#9E9E9E"},
		{StageDevelopment, "DRAFT", "#9E9E9E"},
		{StageSampling, "SAMPLE", "#1E88E5"},
		{StageProduction, "APPROVED", "#2E7D32"},
		{StageRevision, "UNDER REVISION", "#EF6C00"},
	}

	for _, tt := range tests {
		t.Run(tt.stage.String(), func(t *testing.T) {
			got := composer.DeriveWatermark(tt.stage)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantText, got.WatermarkText)
			assert.Equal(t, tt.wantColor, got.ColorHex)
			assert.Equal(t, PlacementCenter, got.Placement)
			assert.GreaterOrEqual(t, got.Opacity, 0.0)
			assert.LessOrEqual(t, got.Opacity, 1.0)
			assert.Nil(t, got.Logo)

			again := composer.DeriveWatermark(tt.stage)
			assert.Equal(t, got, again)
		})
	}

	t.Run("unmapped stage has no watermark", func(t *testing.T) {
		assert.Nil(t, composer.DeriveWatermark("archived"))
		assert.Nil(t, composer.DeriveWatermark(""))
	})

	t.Run("stage lookup ignores case and spaces", func(t *testing.T) {
		got := composer.DeriveWatermark(" Production ")
		require.NotNil(t, got)
		assert.Equal(t, "APPROVED", got.WatermarkText)
	})

	t.Run("returned descriptor is a copy", func(t *testing.T) {
		got := composer.DeriveWatermark(StageSampling)
		got.WatermarkText = "changed"
		assert.Equal(t, "SAMPLE", composer.DeriveWatermark(StageSampling).WatermarkText)
	})
}

func TestOverlayComposer_DeriveBrandWatermark(t *testing.T) {
	composer := NewOverlayComposer()

	t.Run("tiled low opacity", func(t *testing.T) {
		got := composer.DeriveBrandWatermark("Northwind", "")
		assert.Equal(t, "NORTHWIND", got.WatermarkText)
		assert.Equal(t, PlacementTiled, got.Placement)
		assert.Less(t, got.Opacity, 0.2)
	})

	t.Run("joins supplier", func(t *testing.T) {
		got := composer.DeriveBrandWatermark("Northwind", "Acme Mills")
		assert.Equal(t, "NORTHWIND × ACME MILLS", got.WatermarkText)
	})

	t.Run("font size shrinks with text length", func(t *testing.T) {
		short := composer.DeriveBrandWatermark("Abcdefgh", "")
		long := composer.DeriveBrandWatermark("Abcdefghijklmnop", "")
		assert.Greater(t, short.FontSizePt, long.FontSizePt)
		assert.InDelta(t, 60.0, short.FontSizePt, 0.001)
		assert.InDelta(t, 30.0, long.FontSizePt, 0.001)
	})

	t.Run("font size is clamped", func(t *testing.T) {
		tiny := composer.DeriveBrandWatermark("AB", "")
		huge := composer.DeriveBrandWatermark(strings.Repeat("x", 200), "")
		assert.Equal(t, brandFontMaxSize, tiny.FontSizePt)
		assert.Equal(t, brandFontMinSize, huge.FontSizePt)
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		ascii := composer.DeriveBrandWatermark("ABCDEFGH", "")
		accented := composer.DeriveBrandWatermark("ÉCRUÉCRU", "")
		assert.Equal(t, ascii.FontSizePt, accented.FontSizePt)
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t,
			composer.DeriveBrandWatermark("Northwind", "Acme"),
			composer.DeriveBrandWatermark("Northwind", "Acme"))
	})
}

func TestOverlayComposer_ResolveLogo(t *testing.T) {
	composer := NewOverlayComposer(WithLogoTable(map[string]string{
		"Northwind":  "logos/northwind.png",
		"Acme Mills": "logos/acme.svg",
		"Empty":      "",
	}))

	t.Run("case insensitive match", func(t *testing.T) {
		ref := composer.ResolveLogo("  northwind ")
		require.NotNil(t, ref)
		assert.Equal(t, "logos/northwind.png", ref.Key)
	})

	t.Run("unknown owner", func(t *testing.T) {
		assert.Nil(t, composer.ResolveLogo("Contoso"))
		assert.Nil(t, composer.ResolveLogo(""))
		assert.Nil(t, composer.ResolveLogo("Empty"))
	})
}

func TestOverlayComposer_Compose(t *testing.T) {
	composer := NewOverlayComposer(WithLogoTable(map[string]string{
		"Northwind":  "logos/northwind.png",
		"Acme Mills": "logos/acme.svg",
	}))

	t.Run("stage mark wins and supplier logo wins", func(t *testing.T) {
		s := newTestSnapshot(0, 0, 0)
		s.Supplier = "Acme Mills"
		got := composer.Compose(s)
		require.NotNil(t, got)
		assert.Equal(t, "SAMPLE", got.WatermarkText)
		require.NotNil(t, got.Logo)
		assert.Equal(t, "logos/acme.svg", got.Logo.Key)
	})

	t.Run("brand mark when stage is unmapped", func(t *testing.T) {
		s := newTestSnapshot(0, 0, 0)
		s.LifecycleStage = "archived"
		got := composer.Compose(s)
		require.NotNil(t, got)
		assert.Equal(t, PlacementTiled, got.Placement)
		assert.Equal(t, "logos/northwind.png", got.Logo.Key)
	})

	t.Run("logo only", func(t *testing.T) {
		s := newTestSnapshot(0, 0, 0)
		s.LifecycleStage = ""
		s.Brand = ""
		s.Supplier = "Acme Mills"
		got := composer.Compose(s)
		require.NotNil(t, got)
		assert.False(t, got.HasWatermark())
		assert.NotNil(t, got.Logo)
	})

	t.Run("nothing to overlay", func(t *testing.T) {
		s := newTestSnapshot(0, 0, 0)
		s.LifecycleStage = ""
		s.Brand = ""
		assert.Nil(t, composer.Compose(s))
	})
}
