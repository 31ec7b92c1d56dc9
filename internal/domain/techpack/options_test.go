package techpack

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionOverrides_Resolve(t *testing.T) {
	t.Run("nil overrides use defaults", func(t *testing.T) {
		var in *OptionOverrides
		opts, err := in.Resolve()
		require.NoError(t, err)
		assert.Equal(t, DefaultRenderOptions(), opts)
	})

	t.Run("decodes recognized keys and ignores the rest", func(t *testing.T) {
		var in OptionOverrides
		body := `{"format":"letter","orientation":"Landscape","includeImages":false,"imageQuality":70,"margins":{"top":5},"watermark":"ignored"}`
		require.NoError(t, json.Unmarshal([]byte(body), &in))

		opts, err := in.Resolve()
		require.NoError(t, err)
		assert.Equal(t, PaperSizeLetter, opts.Format)
		assert.Equal(t, OrientationLandscape, opts.Orientation)
		assert.False(t, opts.IncludeImages)
		assert.Equal(t, 70, opts.ImageQuality)
		assert.Equal(t, Margins{Top: 5, Bottom: 10, Left: 10, Right: 10}, opts.Margins)
	})

	t.Run("missing include images keeps default true", func(t *testing.T) {
		var in OptionOverrides
		require.NoError(t, json.Unmarshal([]byte(`{"imageQuality":50}`), &in))
		opts, err := in.Resolve()
		require.NoError(t, err)
		assert.True(t, opts.IncludeImages)
	})

	tests := []struct {
		name string
		body string
	}{
		{"unknown format", `{"format":"A3"}`},
		{"unknown orientation", `{"orientation":"diagonal"}`},
		{"quality above range", `{"imageQuality":101}`},
		{"quality below range", `{"imageQuality":-1}`},
		{"negative margin", `{"margins":{"left":-1}}`},
		{"margin too large", `{"margins":{"right":101}}`},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			var in OptionOverrides
			require.NoError(t, json.Unmarshal([]byte(tt.body), &in))
			_, err := in.Resolve()
			require.Error(t, err)
			assert.Equal(t, CodeInvalidOptions, ErrorCode(err))
		})
	}
}

func TestRenderOptions_Variant(t *testing.T) {
	a := DefaultRenderOptions()
	b := DefaultRenderOptions()
	assert.Equal(t, a.Variant(), b.Variant())
	assert.Len(t, a.Variant(), 12)

	b.Orientation = OrientationLandscape
	assert.NotEqual(t, a.Variant(), b.Variant())

	c := DefaultRenderOptions()
	c.Margins.Left = 11
	assert.NotEqual(t, a.Variant(), c.Variant())
}

func TestRenderOptions_PageSizeMM(t *testing.T) {
	opts := DefaultRenderOptions()
	w, h := opts.PageSizeMM()
	assert.Equal(t, 210, w)
	assert.Equal(t, 297, h)

	opts.Format = PaperSizeLegal
	opts.Orientation = OrientationLandscape
	w, h = opts.PageSizeMM()
	assert.Equal(t, 356, w)
	assert.Equal(t, 216, h)
}

func TestParsePaperSize(t *testing.T) {
	tests := []struct {
		in   string
		want PaperSize
		ok   bool
	}{
		{"A4", PaperSizeA4, true},
		{"a4", PaperSizeA4, true},
		{"LETTER", PaperSizeLetter, true},
		{" legal ", PaperSizeLegal, true},
		{"tabloid", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParsePaperSize(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
