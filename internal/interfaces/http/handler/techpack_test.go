package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/techpack/backend/internal/application/rendering"
	"github.com/techpack/backend/internal/domain/shared"
	"github.com/techpack/backend/internal/domain/techpack"
	"github.com/techpack/backend/internal/interfaces/http/dto"
	"github.com/techpack/backend/internal/interfaces/http/handler"
	"github.com/techpack/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// ===================================================================
// Mock service
// ===================================================================

type mockService struct {
	mock.Mock
}

func (m *mockService) Generate(ctx context.Context, documentID string, options techpack.RenderOptions) (*techpack.Artifact, error) {
	args := m.Called(ctx, documentID, options)
	a, _ := args.Get(0).(*techpack.Artifact)
	return a, args.Error(1)
}

func (m *mockService) Preview(ctx context.Context, documentID string, pageNumber int, options techpack.RenderOptions) (*techpack.Artifact, error) {
	args := m.Called(ctx, documentID, pageNumber, options)
	a, _ := args.Get(0).(*techpack.Artifact)
	return a, args.Error(1)
}

func (m *mockService) BulkGenerate(ctx context.Context, documentIDs []string, options techpack.RenderOptions) (*rendering.BulkResult, error) {
	args := m.Called(ctx, documentIDs, options)
	r, _ := args.Get(0).(*rendering.BulkResult)
	return r, args.Error(1)
}

func (m *mockService) Describe(ctx context.Context, documentID string) (*rendering.Description, error) {
	args := m.Called(ctx, documentID)
	d, _ := args.Get(0).(*rendering.Description)
	return d, args.Error(1)
}

func (m *mockService) OnDocumentMutated(ctx context.Context, documentID string) error {
	return m.Called(ctx, documentID).Error(0)
}

func (m *mockService) OnDocumentsMutated(ctx context.Context, documentIDs []string) error {
	return m.Called(ctx, documentIDs).Error(0)
}

// ===================================================================
// Helpers
// ===================================================================

func newTechPackEngine(svc handler.TechPackService) *gin.Engine {
	engine := gin.New()
	handler.TechPackRoutes(handler.NewTechPackHandler(svc), nil).RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func do(engine *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorInfo  `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func pdfArtifact(hit bool) *techpack.Artifact {
	return &techpack.Artifact{
		DocumentID:     "tp-1",
		ContentVersion: "v3",
		Kind:           techpack.ArtifactDocument,
		Format:         techpack.OutputPDF,
		PageIndex:      -1,
		Pages:          4,
		Data:           []byte("%PDF-1.7 test"),
		CreatedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		CacheHit:       hit,
	}
}

// ===================================================================
// Generate
// ===================================================================

func TestTechPackHandler_Generate(t *testing.T) {
	t.Run("streams the pdf with cache headers", func(t *testing.T) {
		svc := new(mockService)
		svc.On("Generate", mock.Anything, "tp-1", techpack.DefaultRenderOptions()).Return(pdfArtifact(false), nil)

		w := do(newTechPackEngine(svc), http.MethodPost, "/api/v1/techpacks/tp-1/generate", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.Equal(t, "MISS", w.Header().Get(handler.HeaderCache))
		assert.Equal(t, "v3", w.Header().Get(handler.HeaderContentVersion))
		assert.Equal(t, "4", w.Header().Get(handler.HeaderPageCount))
		assert.Equal(t, "attachment; filename=tp-1-v3.pdf", w.Header().Get("Content-Disposition"))
		assert.Equal(t, "%PDF-1.7 test", w.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("applies option overrides", func(t *testing.T) {
		expected := techpack.DefaultRenderOptions()
		expected.Format = techpack.PaperSizeLetter
		expected.Orientation = techpack.OrientationLandscape

		svc := new(mockService)
		svc.On("Generate", mock.Anything, "tp-1", expected).Return(pdfArtifact(true), nil)

		w := do(newTechPackEngine(svc), http.MethodPost, "/api/v1/techpacks/tp-1/generate",
			`{"options":{"format":"Letter","orientation":"landscape"}}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "HIT", w.Header().Get(handler.HeaderCache))
		svc.AssertExpectations(t)
	})

	t.Run("returns a json reference on request", func(t *testing.T) {
		svc := new(mockService)
		svc.On("Generate", mock.Anything, "tp-1", mock.Anything).Return(pdfArtifact(false), nil)

		w := do(newTechPackEngine(svc), http.MethodPost, "/api/v1/techpacks/tp-1/generate?response=json", nil)

		require.Equal(t, http.StatusOK, w.Code)
		env := decode(t, w)
		assert.True(t, env.Success)
		var ref dto.ArtifactResponse
		require.NoError(t, json.Unmarshal(env.Data, &ref))
		assert.Equal(t, "tp-1", ref.DocumentID)
		assert.Equal(t, 4, ref.Pages)
	})

	t.Run("rejects unsupported options before rendering", func(t *testing.T) {
		svc := new(mockService)

		w := do(newTechPackEngine(svc), http.MethodPost, "/api/v1/techpacks/tp-1/generate", `{"options":{"format":"B9"}}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decode(t, w).Error.Code)
		svc.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		w := do(newTechPackEngine(new(mockService)), http.MethodPost, "/api/v1/techpacks/tp-1/generate", `{"options":`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, decode(t, w).Error.Code)
	})

	t.Run("maps invalid snapshots to 422 with problems", func(t *testing.T) {
		svc := new(mockService)
		svc.On("Generate", mock.Anything, "tp-1", mock.Anything).Return(nil,
			&techpack.InvalidSnapshotError{DocumentID: "tp-1", Problems: []string{"article is required"}})

		w := do(newTechPackEngine(svc), http.MethodPost, "/api/v1/techpacks/tp-1/generate", nil)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		env := decode(t, w)
		assert.Equal(t, dto.ErrCodeInvalidSnapshot, env.Error.Code)
		assert.Equal(t, []string{"article is required"}, env.Error.Details)
	})

	t.Run("maps pool saturation to 503 with retry-after", func(t *testing.T) {
		svc := new(mockService)
		svc.On("Generate", mock.Anything, "tp-1", mock.Anything).Return(nil,
			&techpack.PoolSaturatedError{Waited: 2500 * time.Millisecond})

		w := do(newTechPackEngine(svc), http.MethodPost, "/api/v1/techpacks/tp-1/generate", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "3", w.Header().Get("Retry-After"))
		env := decode(t, w)
		assert.Equal(t, dto.ErrCodePoolSaturated, env.Error.Code)
		assert.True(t, env.Error.Retryable)
	})

	t.Run("maps unknown documents to 404", func(t *testing.T) {
		svc := new(mockService)
		svc.On("Generate", mock.Anything, "missing", mock.Anything).Return(nil, shared.ErrNotFound)

		w := do(newTechPackEngine(svc), http.MethodPost, "/api/v1/techpacks/missing/generate", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// ===================================================================
// Preview
// ===================================================================

func TestTechPackHandler_Preview(t *testing.T) {
	png := &techpack.Artifact{
		DocumentID:     "tp-1",
		ContentVersion: "v3",
		Kind:           techpack.ArtifactPreview,
		Format:         techpack.OutputPNG,
		PageIndex:      1,
		Pages:          4,
		Data:           []byte("\x89PNG"),
	}

	t.Run("serves the page inline", func(t *testing.T) {
		svc := new(mockService)
		svc.On("Preview", mock.Anything, "tp-1", 2, techpack.DefaultRenderOptions()).Return(png, nil)

		w := do(newTechPackEngine(svc), http.MethodGet, "/api/v1/techpacks/tp-1/pages/2/preview", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, "inline; filename=tp-1-v3-p2.png", w.Header().Get("Content-Disposition"))
		svc.AssertExpectations(t)
	})

	t.Run("reads overrides from the query", func(t *testing.T) {
		expected := techpack.DefaultRenderOptions()
		expected.IncludeImages = false
		expected.ImageQuality = 60

		svc := new(mockService)
		svc.On("Preview", mock.Anything, "tp-1", 1, expected).Return(png, nil)

		w := do(newTechPackEngine(svc), http.MethodGet,
			"/api/v1/techpacks/tp-1/pages/1/preview?include_images=false&image_quality=60", nil)

		require.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("rejects a non numeric page", func(t *testing.T) {
		w := do(newTechPackEngine(new(mockService)), http.MethodGet, "/api/v1/techpacks/tp-1/pages/two/preview", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decode(t, w).Error.Code)
	})

	t.Run("maps out of range pages", func(t *testing.T) {
		svc := new(mockService)
		svc.On("Preview", mock.Anything, "tp-1", 9, mock.Anything).Return(nil, techpack.NewPageOutOfRangeError(9, 4))

		w := do(newTechPackEngine(svc), http.MethodGet, "/api/v1/techpacks/tp-1/pages/9/preview", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodePageOutOfRange, decode(t, w).Error.Code)
	})

	t.Run("maps render timeouts to 504", func(t *testing.T) {
		svc := new(mockService)
		svc.On("Preview", mock.Anything, "tp-1", 1, mock.Anything).Return(nil,
			&techpack.RenderTimeoutError{DocumentID: "tp-1", PageIndex: 0, Budget: time.Second})

		w := do(newTechPackEngine(svc), http.MethodGet, "/api/v1/techpacks/tp-1/pages/1/preview", nil)

		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
		assert.True(t, decode(t, w).Error.Retryable)
	})
}

// ===================================================================
// Bulk, describe and mutation hooks
// ===================================================================

func TestTechPackHandler_BulkGenerate(t *testing.T) {
	t.Run("returns per document results", func(t *testing.T) {
		result := &rendering.BulkResult{
			RunID: "run-1",
			Results: []rendering.BulkItemResult{
				{DocumentID: "a", Success: true, Artifact: &rendering.ArtifactRef{Key: "bulk/run-1/a-v1.pdf"}},
				{DocumentID: "b", Success: false, Error: &rendering.ItemError{Code: dto.ErrCodeInvalidSnapshot, Message: "invalid"}},
			},
			Summary: rendering.BulkSummary{Total: 2, Successful: 1, Failed: 1},
		}
		svc := new(mockService)
		svc.On("BulkGenerate", mock.Anything, []string{"a", "b"}, techpack.DefaultRenderOptions()).Return(result, nil)

		w := do(newTechPackEngine(svc), http.MethodPost, "/api/v1/techpacks/bulk", map[string]any{"document_ids": []string{"a", "b"}})

		require.Equal(t, http.StatusOK, w.Code)
		var got rendering.BulkResult
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
		assert.Equal(t, 1, got.Summary.Failed)
		assert.Len(t, got.Results, 2)
	})

	t.Run("requires document ids", func(t *testing.T) {
		w := do(newTechPackEngine(new(mockService)), http.MethodPost, "/api/v1/techpacks/bulk", map[string]any{"document_ids": []string{}})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env := decode(t, w)
		assert.Equal(t, dto.ErrCodeValidation, env.Error.Code)
		assert.NotEmpty(t, env.Error.Details)
	})

	t.Run("maps oversized batches", func(t *testing.T) {
		svc := new(mockService)
		svc.On("BulkGenerate", mock.Anything, mock.Anything, mock.Anything).Return(nil,
			shared.NewDomainError(techpack.CodeTooManyDocuments, "At most 2 documents per request"))

		w := do(newTechPackEngine(svc), http.MethodPost, "/api/v1/techpacks/bulk", map[string]any{"document_ids": []string{"a", "b", "c"}})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeTooManyDocuments, decode(t, w).Error.Code)
	})
}

func TestTechPackHandler_Describe(t *testing.T) {
	svc := new(mockService)
	svc.On("Describe", mock.Anything, "tp-1").Return(&rendering.Description{
		DocumentID:     "tp-1",
		ContentVersion: "v3",
		EstimatedPages: 5,
		CanGenerate:    true,
	}, nil)

	w := do(newTechPackEngine(svc), http.MethodGet, "/api/v1/techpacks/tp-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var desc rendering.Description
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &desc))
	assert.Equal(t, 5, desc.EstimatedPages)
	assert.True(t, desc.CanGenerate)
}

func TestTechPackHandler_Mutations(t *testing.T) {
	t.Run("single document", func(t *testing.T) {
		svc := new(mockService)
		svc.On("OnDocumentMutated", mock.Anything, "tp-1").Return(nil)

		w := do(newTechPackEngine(svc), http.MethodPost, "/api/v1/techpacks/tp-1/mutations", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var resp dto.InvalidationResponse
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
		assert.Equal(t, []string{"tp-1"}, resp.Invalidated)
		svc.AssertExpectations(t)
	})

	t.Run("several documents", func(t *testing.T) {
		svc := new(mockService)
		svc.On("OnDocumentsMutated", mock.Anything, []string{"a", "b"}).Return(nil)

		w := do(newTechPackEngine(svc), http.MethodPost, "/api/v1/techpacks/mutations", map[string]any{"document_ids": []string{"a", "b"}})

		require.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("surfaces cache outages", func(t *testing.T) {
		svc := new(mockService)
		svc.On("OnDocumentMutated", mock.Anything, "tp-1").Return(
			&techpack.CacheUnavailableError{Op: "invalidate", Err: errors.New("connection refused")})

		w := do(newTechPackEngine(svc), http.MethodPost, "/api/v1/techpacks/tp-1/mutations", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		env := decode(t, w)
		assert.Equal(t, dto.ErrCodeCacheUnavailable, env.Error.Code)
		assert.True(t, env.Error.Retryable)
	})
}
