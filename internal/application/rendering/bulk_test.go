package rendering_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/techpack/backend/internal/application/rendering"
	"github.com/techpack/backend/internal/domain/shared"
	"github.com/techpack/backend/internal/domain/techpack"
	"github.com/techpack/backend/internal/infrastructure/cache"
	"github.com/techpack/backend/internal/infrastructure/printing"
	"github.com/techpack/backend/internal/infrastructure/storage"
)

// fakeGenerator produces "<id>-pdf" documents; failures are injected per id
type fakeGenerator struct {
	mu       sync.Mutex
	calls    map[string]int
	inFlight int
	peak     int

	failures map[string]error
	delay    time.Duration
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{calls: make(map[string]int), failures: make(map[string]error)}
}

func (g *fakeGenerator) Generate(ctx context.Context, documentID string, _ techpack.RenderOptions) (*techpack.Artifact, error) {
	g.mu.Lock()
	g.calls[documentID]++
	g.inFlight++
	g.peak = max(g.peak, g.inFlight)
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := g.failures[documentID]; err != nil {
		return nil, err
	}
	return &techpack.Artifact{
		DocumentID:     documentID,
		ContentVersion: "v2",
		Kind:           techpack.ArtifactDocument,
		Format:         techpack.OutputPDF,
		PageIndex:      -1,
		Pages:          3,
		Data:           []byte(documentID + "-pdf"),
	}, nil
}

// failingStore rejects every write
type failingStore struct {
	storage.ObjectStore
}

func (failingStore) Put(context.Context, string, []byte, string) (*storage.Object, error) {
	return nil, errors.New("bucket unavailable")
}

func TestBulkOrchestrator_RunBulk(t *testing.T) {
	ctx := context.Background()
	opts := techpack.DefaultRenderOptions()

	t.Run("results follow input order", func(t *testing.T) {
		gen := newFakeGenerator()
		store := storage.NewMemoryStorage()
		o := rendering.NewBulkOrchestrator(gen, store, rendering.BulkConfig{Parallelism: 3})

		ids := []string{"TP-5", "TP-1", "TP-4", "TP-2", "TP-3"}
		result, err := o.RunBulk(ctx, ids, opts)
		require.NoError(t, err)
		require.Len(t, result.Results, len(ids))

		for i, item := range result.Results {
			assert.Equal(t, ids[i], item.DocumentID)
			assert.True(t, item.Success)
			require.NotNil(t, item.Artifact)
			assert.Equal(t, rendering.BulkArtifactKey(result.RunID, ids[i], "v2"), item.Artifact.Key)
			assert.Equal(t, "memory://objects/"+item.Artifact.Key, item.Artifact.URL)
			assert.Equal(t, int64(len(ids[i]+"-pdf")), item.Artifact.Size)
			assert.Equal(t, 3, item.Artifact.Pages)
		}
		assert.Equal(t, rendering.BulkSummary{Total: 5, Successful: 5}, result.Summary)
		assert.NotEmpty(t, result.RunID)
		assert.GreaterOrEqual(t, result.DurationMS, int64(0))

		keys := store.Keys("bulk/" + result.RunID + "/")
		sort.Strings(keys)
		assert.Len(t, keys, 5)
		assert.Equal(t, "bulk/"+result.RunID+"/TP-1-v2.pdf", keys[0])
	})

	t.Run("failures are isolated per document", func(t *testing.T) {
		gen := newFakeGenerator()
		gen.failures["TP-2"] = &techpack.InvalidSnapshotError{DocumentID: "TP-2", Problems: []string{"article style number is required"}}
		gen.failures["TP-3"] = &techpack.RenderTimeoutError{DocumentID: "TP-3", PageIndex: 1, Budget: 30 * time.Second}
		gen.failures["TP-4"] = shared.NewDomainError("NOT_FOUND", "Tech pack TP-4 not found")
		gen.failures["TP-5"] = errors.New("boom")
		o := rendering.NewBulkOrchestrator(gen, storage.NewMemoryStorage(), rendering.BulkConfig{Parallelism: 2})

		result, err := o.RunBulk(ctx, []string{"TP-1", "TP-2", "TP-3", "TP-4", "TP-5"}, opts)
		require.NoError(t, err)
		assert.Equal(t, rendering.BulkSummary{Total: 5, Successful: 1, Failed: 4}, result.Summary)

		assert.True(t, result.Results[0].Success)

		tests := []struct {
			index     int
			code      string
			retryable bool
		}{
			{1, techpack.CodeInvalidSnapshot, false},
			{2, techpack.CodeRenderTimeout, true},
			{3, "NOT_FOUND", false},
			{4, rendering.CodeInternal, false},
		}
		for _, tt := range tests {
			item := result.Results[tt.index]
			assert.False(t, item.Success, item.DocumentID)
			assert.Nil(t, item.Artifact, item.DocumentID)
			require.NotNil(t, item.Error, item.DocumentID)
			assert.Equal(t, tt.code, item.Error.Code, item.DocumentID)
			assert.Equal(t, tt.retryable, item.Error.Retryable, item.DocumentID)
			assert.NotEmpty(t, item.Error.Message, item.DocumentID)
		}
	})

	t.Run("parallelism never exceeds render capacity", func(t *testing.T) {
		gen := newFakeGenerator()
		gen.delay = 5 * time.Millisecond
		o := rendering.NewBulkOrchestrator(gen, storage.NewMemoryStorage(), rendering.BulkConfig{Parallelism: 3})

		ids := make([]string, 20)
		for i := range ids {
			ids[i] = fmt.Sprintf("TP-%02d", i)
		}
		result, err := o.RunBulk(ctx, ids, opts)
		require.NoError(t, err)
		assert.Equal(t, 20, result.Summary.Successful)
		assert.LessOrEqual(t, gen.peak, 3)
	})

	t.Run("duplicates are generated once", func(t *testing.T) {
		gen := newFakeGenerator()
		o := rendering.NewBulkOrchestrator(gen, storage.NewMemoryStorage(), rendering.BulkConfig{Parallelism: 4})

		result, err := o.RunBulk(ctx, []string{"TP-1", "TP-2", "TP-1", " TP-2 "}, opts)
		require.NoError(t, err)
		assert.Equal(t, 1, gen.calls["TP-1"])
		assert.Equal(t, 1, gen.calls["TP-2"])
		assert.Equal(t, 4, result.Summary.Total)
		assert.Equal(t, 4, result.Summary.Successful)
		assert.Equal(t, " TP-2 ", result.Results[3].DocumentID)
		assert.Equal(t, result.Results[1].Artifact.Key, result.Results[3].Artifact.Key)
	})

	t.Run("request limits", func(t *testing.T) {
		gen := newFakeGenerator()
		o := rendering.NewBulkOrchestrator(gen, storage.NewMemoryStorage(), rendering.BulkConfig{Parallelism: 2, MaxDocuments: 3})
		assert.Equal(t, 3, o.MaxDocuments())

		_, err := o.RunBulk(ctx, nil, opts)
		assert.Equal(t, "INVALID_INPUT", techpack.ErrorCode(err))

		_, err = o.RunBulk(ctx, []string{"a", "b", "c", "d"}, opts)
		assert.Equal(t, techpack.CodeTooManyDocuments, techpack.ErrorCode(err))

		bad := opts
		bad.Orientation = "diagonal"
		_, err = o.RunBulk(ctx, []string{"a"}, bad)
		assert.Equal(t, techpack.CodeInvalidOptions, techpack.ErrorCode(err))

		assert.Empty(t, gen.calls)
	})

	t.Run("defaults", func(t *testing.T) {
		o := rendering.NewBulkOrchestrator(newFakeGenerator(), nil, rendering.BulkConfig{})
		assert.Equal(t, rendering.DefaultMaxBulkDocuments, o.MaxDocuments())
	})

	t.Run("storage failures are reported per document", func(t *testing.T) {
		for name, store := range map[string]storage.ObjectStore{
			"missing store": nil,
			"failing store": failingStore{},
		} {
			t.Run(name, func(t *testing.T) {
				o := rendering.NewBulkOrchestrator(newFakeGenerator(), store, rendering.BulkConfig{Parallelism: 2})
				result, err := o.RunBulk(ctx, []string{"TP-1", "TP-2"}, opts)
				require.NoError(t, err)
				assert.Equal(t, 2, result.Summary.Failed)
				for _, item := range result.Results {
					require.NotNil(t, item.Error)
					assert.Equal(t, rendering.CodeStorageFailed, item.Error.Code)
					assert.True(t, item.Error.Retryable)
				}
			})
		}
	})

	t.Run("cancelled run reports every document", func(t *testing.T) {
		gen := newFakeGenerator()
		gen.delay = time.Second
		o := rendering.NewBulkOrchestrator(gen, storage.NewMemoryStorage(), rendering.BulkConfig{Parallelism: 2})

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		result, err := o.RunBulk(cctx, []string{"TP-1", "TP-2", "TP-3"}, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, result.Summary.Failed)
		for _, item := range result.Results {
			require.NotNil(t, item.Error)
			assert.Equal(t, techpack.CodeRenderTimeout, item.Error.Code)
			assert.True(t, item.Error.Retryable)
		}
	})
}

func TestRenderService_BulkGenerate(t *testing.T) {
	env := newTestEnv(t, 2, rendering.Config{MaxBulkDocuments: 10})
	env.serve(newSnapshot("TP-1", 0), newSnapshot("TP-2", 25))
	env.repo.On("GetDocumentSnapshot", mock.Anything, "TP-404").Return(nil, shared.ErrNotFound)

	result, err := env.service.BulkGenerate(context.Background(), []string{"TP-2", "TP-404", "TP-1"}, techpack.DefaultRenderOptions())
	require.NoError(t, err)
	assert.Equal(t, rendering.BulkSummary{Total: 3, Successful: 2, Failed: 1}, result.Summary)
	assert.Equal(t, 5, result.Results[0].Artifact.Pages)
	assert.Equal(t, "NOT_FOUND", result.Results[1].Error.Code)
	assert.Equal(t, 2, result.Results[2].Artifact.Pages)
	assert.LessOrEqual(t, env.renderer.Peak(), 2, "a run never submits more jobs than the renderer holds")

	obj, err := env.store.Get(context.Background(), result.Results[2].Artifact.Key)
	require.NoError(t, err)
	assert.Equal(t, pagePayloads("TP-1", 2, "pdf"), obj.Data)
	assert.Equal(t, "application/pdf", obj.ContentType)
}

// steadyEngine renders every page in a fixed time
type steadyEngine struct {
	delay time.Duration
}

func (e steadyEngine) Render(ctx context.Context, req *printing.RenderRequest) (*printing.RenderResult, error) {
	select {
	case <-time.After(e.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &printing.RenderResult{Data: []byte("page"), Format: req.Output, PageCount: 1}, nil
}

func (steadyEngine) Health(context.Context) error { return nil }

func (steadyEngine) Close() error { return nil }

func TestRenderService_BulkGenerateWithPool(t *testing.T) {
	// Four documents of eight pages each on four slots. A page claims its
	// slot before the submit timeout only if the run never queues more jobs
	// than the pool holds.
	pool := printing.NewRenderPool(printing.PoolConfig{
		Size:                4,
		SubmitTimeout:       150 * time.Millisecond,
		JobTimeout:          5 * time.Second,
		HealthCheckInterval: -1,
	}, func(context.Context) (printing.Engine, error) {
		return steadyEngine{delay: 60 * time.Millisecond}, nil
	})
	t.Cleanup(func() { _ = pool.Close(context.Background()) })

	mem := cache.NewInMemoryArtifactCache(cache.WithCleanupInterval(-1))
	t.Cleanup(func() { mem.Close() })

	repo := new(MockSnapshotRepository)
	ids := []string{"TP-A", "TP-B", "TP-C", "TP-D"}
	for _, id := range ids {
		// header + measurements + 6 BOM pages
		repo.On("GetDocumentSnapshot", mock.Anything, id).Return(newSnapshot(id, 60), nil)
	}

	service := rendering.NewRenderService(repo, pool, mem, storage.NewMemoryStorage(), rendering.Config{MaxBulkDocuments: 10},
		rendering.WithAssembler(printing.NewAssembler(printing.WithMergeFunc(joinMerge))))

	single, err := service.Generate(context.Background(), "TP-A", techpack.DefaultRenderOptions())
	require.NoError(t, err)
	require.Equal(t, 8, single.Pages)
	require.NoError(t, service.FlushCache(context.Background()))

	result, err := service.BulkGenerate(context.Background(), ids, techpack.DefaultRenderOptions())
	require.NoError(t, err)

	for _, item := range result.Results {
		if !assert.True(t, item.Success, item.DocumentID) {
			t.Logf("%s failed: %+v", item.DocumentID, item.Error)
		}
	}
	assert.Equal(t, rendering.BulkSummary{Total: 4, Successful: 4, Failed: 0}, result.Summary)

	stats := pool.Stats()
	assert.Zero(t, stats.Saturated)
	assert.LessOrEqual(t, stats.PeakRunning, int64(4))
	assert.Equal(t, int64(40), stats.Completed)
}
