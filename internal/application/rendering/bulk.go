package rendering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/techpack/backend/internal/domain/shared"
	"github.com/techpack/backend/internal/domain/techpack"
	"github.com/techpack/backend/internal/infrastructure/storage"
	"github.com/techpack/backend/internal/infrastructure/telemetry"
)

// DefaultMaxBulkDocuments caps a bulk request when no limit is configured
const DefaultMaxBulkDocuments = 50

// Item error codes raised by the orchestrator itself
const (
	CodeStorageFailed = "STORAGE_FAILED"
	CodeCancelled     = "CANCELLED"
	CodeInternal      = "INTERNAL_ERROR"
)

// Generator produces one complete document
type Generator interface {
	Generate(ctx context.Context, documentID string, options techpack.RenderOptions) (*techpack.Artifact, error)
}

// BulkConfig holds bulk orchestration settings
type BulkConfig struct {
	// Parallelism is the render capacity, documents in flight never exceed it
	Parallelism  int
	MaxDocuments int
	Logger       *zap.Logger
}

// BulkOrchestrator fans a multi-document request out over a Generator and
// collects one result per requested document
type BulkOrchestrator struct {
	generator    Generator
	store        storage.ObjectStore
	parallelism  int
	maxDocuments int
	newRunID     func() string
	now          func() time.Time
	logger       *zap.Logger
}

// NewBulkOrchestrator creates a BulkOrchestrator. Successful documents are
// written to store under bulk/{runId}/.
func NewBulkOrchestrator(generator Generator, store storage.ObjectStore, cfg BulkConfig) *BulkOrchestrator {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = DefaultMaxBulkDocuments
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &BulkOrchestrator{
		generator:    generator,
		store:        store,
		parallelism:  cfg.Parallelism,
		maxDocuments: cfg.MaxDocuments,
		newRunID:     uuid.NewString,
		now:          time.Now,
		logger:       cfg.Logger,
	}
}

// MaxDocuments returns the largest accepted request
func (o *BulkOrchestrator) MaxDocuments() int {
	return o.maxDocuments
}

// RunBulk generates every document and returns results in input order.
// A failing document never fails the run; only an invalid request does.
// Repeated IDs are generated once and reported at every position.
func (o *BulkOrchestrator) RunBulk(ctx context.Context, documentIDs []string, options techpack.RenderOptions) (*BulkResult, error) {
	if len(documentIDs) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "At least one document ID is required")
	}
	if len(documentIDs) > o.maxDocuments {
		return nil, shared.NewDomainError(techpack.CodeTooManyDocuments,
			fmt.Sprintf("Bulk requests are limited to %d documents, got %d", o.maxDocuments, len(documentIDs)))
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	runID := o.newRunID()
	started := o.now()
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanBulk,
		telemetry.WithAttribute(telemetry.SpanAttrRunID, runID),
		telemetry.WithAttribute(telemetry.SpanAttrDocuments, len(documentIDs)))
	defer span.End()

	unique := make([]string, 0, len(documentIDs))
	seen := make(map[string]int, len(documentIDs))
	for _, id := range documentIDs {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; !ok {
			seen[id] = len(unique)
			unique = append(unique, id)
		}
	}

	outcomes := make([]BulkItemResult, len(unique))

	// Failures are recorded per item, so the group never cancels siblings
	var g errgroup.Group
	g.SetLimit(min(len(unique), o.parallelism))
	for i, id := range unique {
		g.Go(func() error {
			outcomes[i] = o.runOne(ctx, runID, id, options)
			return nil
		})
	}
	_ = g.Wait()

	result := &BulkResult{
		RunID:     runID,
		Results:   make([]BulkItemResult, len(documentIDs)),
		StartedAt: started,
	}
	for i, id := range documentIDs {
		item := outcomes[seen[strings.TrimSpace(id)]]
		item.DocumentID = id
		result.Results[i] = item
		if item.Success {
			result.Summary.Successful++
		} else {
			result.Summary.Failed++
		}
	}
	result.Summary.Total = len(documentIDs)
	result.DurationMS = o.now().Sub(started).Milliseconds()

	telemetry.SetAttributes(span, "techpack.bulk_failed", result.Summary.Failed)
	o.logger.Info("Bulk generation finished",
		zap.String("run_id", runID),
		zap.Int("total", result.Summary.Total),
		zap.Int("successful", result.Summary.Successful),
		zap.Int("failed", result.Summary.Failed),
		zap.Int64("duration_ms", result.DurationMS))
	return result, nil
}

func (o *BulkOrchestrator) runOne(ctx context.Context, runID, documentID string, options techpack.RenderOptions) BulkItemResult {
	item := BulkItemResult{DocumentID: documentID}

	artifact, err := o.generator.Generate(ctx, documentID, options)
	if err != nil {
		o.logger.Warn("Bulk document failed",
			zap.String("run_id", runID),
			zap.String("document_id", documentID),
			zap.Error(err))
		item.Error = itemError(err)
		return item
	}

	ref, err := o.storeArtifact(ctx, runID, artifact)
	if err != nil {
		o.logger.Warn("Bulk artifact upload failed",
			zap.String("run_id", runID),
			zap.String("document_id", documentID),
			zap.Error(err))
		item.Error = &ItemError{Code: CodeStorageFailed, Message: err.Error(), Retryable: true}
		return item
	}

	item.Success = true
	item.Artifact = ref
	return item
}

func (o *BulkOrchestrator) storeArtifact(ctx context.Context, runID string, artifact *techpack.Artifact) (*ArtifactRef, error) {
	if o.store == nil {
		return nil, errors.New("artifact storage is not configured")
	}
	key := BulkArtifactKey(runID, artifact.DocumentID, artifact.ContentVersion)
	obj, err := o.store.Put(ctx, key, artifact.Data, artifact.ContentType())
	if err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", key, err)
	}
	url := obj.URL
	if url == "" {
		if url, err = o.store.URL(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to resolve URL of %s: %w", key, err)
		}
	}
	return &ArtifactRef{
		Key:            key,
		URL:            url,
		ContentVersion: artifact.ContentVersion,
		Size:           int64(artifact.Size()),
		Pages:          artifact.Pages,
		CacheHit:       artifact.CacheHit,
	}, nil
}

// BulkArtifactKey is the storage key of one document of a bulk run
func BulkArtifactKey(runID, documentID, contentVersion string) string {
	return "bulk/" + runID + "/" + documentID + "-" + contentVersion + ".pdf"
}

func itemError(err error) *ItemError {
	code := techpack.ErrorCode(err)
	retryable := techpack.IsRetryable(err)
	switch {
	case code != "":
	case errors.Is(err, context.DeadlineExceeded):
		code, retryable = techpack.CodeRenderTimeout, true
	case errors.Is(err, context.Canceled):
		code, retryable = CodeCancelled, true
	default:
		code = CodeInternal
	}
	return &ItemError{Code: code, Message: err.Error(), Retryable: retryable}
}
