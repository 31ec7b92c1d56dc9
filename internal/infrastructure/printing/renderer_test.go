package printing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/techpack/backend/internal/domain/techpack"
)

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name     string
		req      *RenderRequest
		wantCode string
	}{
		{"nil request", nil, ErrCodeInvalidHTML},
		{"empty HTML", &RenderRequest{PaperSize: techpack.PaperSizeA4}, ErrCodeInvalidHTML},
		{"invalid paper size", &RenderRequest{HTML: "<p/>", PaperSize: "A5"}, ErrCodeInvalidPaperSize},
		{"valid request", &RenderRequest{HTML: "<p/>", PaperSize: techpack.PaperSizeLegal}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRequest(tt.req)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			var re *RenderError
			if assert.ErrorAs(t, err, &re) {
				assert.Equal(t, tt.wantCode, re.Code)
			}
		})
	}
}

func TestRenderError(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := NewRenderError(ErrCodeRenderFailed, "render failed", nil)
		assert.Equal(t, "render failed", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("websocket closed")
		err := NewRenderError(ErrCodeEngineCrashed, "browser exited", cause)
		assert.Equal(t, "browser exited: websocket closed", err.Error())
		assert.ErrorIs(t, err, cause)
	})
}

func TestIsRequestError(t *testing.T) {
	assert.True(t, isRequestError(NewRenderError(ErrCodeInvalidHTML, "x", nil)))
	assert.True(t, isRequestError(NewRenderError(ErrCodeInvalidPaperSize, "x", nil)))
	assert.False(t, isRequestError(NewRenderError(ErrCodeEngineCrashed, "x", nil)))
	assert.False(t, isRequestError(errors.New("plain")))
}

func TestUnitConversions(t *testing.T) {
	assert.InDelta(t, 1.0, mmToInches(25.4), 0.0001)
	assert.Equal(t, int64(794), mmToPixels(210))
	assert.Equal(t, int64(1123), mmToPixels(297))
}
