// Package rendering runs the Tech Pack document pipeline: snapshot loading,
// page planning, overlay derivation, pooled rendering, assembly and caching.
package rendering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/techpack/backend/internal/domain/shared"
	"github.com/techpack/backend/internal/domain/techpack"
	"github.com/techpack/backend/internal/infrastructure/cache"
	"github.com/techpack/backend/internal/infrastructure/printing"
	"github.com/techpack/backend/internal/infrastructure/storage"
	"github.com/techpack/backend/internal/infrastructure/telemetry"
)

// Render modes
const (
	// ModePage renders one pool job per page and merges the PDFs
	ModePage = "page"
	// ModeDocument renders the whole document in a single pool job
	ModeDocument = "document"
)

// Renderer executes render jobs under a fixed concurrency cap
type Renderer interface {
	Submit(ctx context.Context, job *printing.RenderJob) (*printing.RenderResult, error)
	Size() int
}

var _ Renderer = (*printing.RenderPool)(nil)

// Config holds the render pipeline settings
type Config struct {
	Mode             string
	Pagination       techpack.PaginationRules
	Logos            map[string]string
	TTL              cache.TTLPolicy
	MaxBulkDocuments int
	Logger           *zap.Logger
}

// Option configures a RenderService
type Option func(*RenderService)

// WithTemplateEngine replaces the default HTML template engine
func WithTemplateEngine(engine *printing.TemplateEngine) Option {
	return func(s *RenderService) {
		s.templates = engine
	}
}

// WithAssembler replaces the default PDF assembler
func WithAssembler(assembler *printing.Assembler) Option {
	return func(s *RenderService) {
		s.assembler = assembler
	}
}

// WithClock overrides the time source for artifact timestamps
func WithClock(now func() time.Time) Option {
	return func(s *RenderService) {
		s.now = now
	}
}

// RenderService exposes generate, preview, bulk generate, describe and the
// cache invalidation hooks of the upstream mutation path
type RenderService struct {
	snapshots techpack.SnapshotRepository
	renderer  Renderer
	artifacts cache.ArtifactCache
	store     storage.ObjectStore

	planner   *techpack.PagePlanner
	composer  *techpack.OverlayComposer
	templates *printing.TemplateEngine
	assembler *printing.Assembler
	bulk      *BulkOrchestrator

	mode   string
	ttl    cache.TTLPolicy
	now    func() time.Time
	logger *zap.Logger
}

// NewRenderService creates a RenderService. store holds logo assets and
// bulk artifacts and may be nil, in which case logos are omitted and bulk
// runs fail per document.
func NewRenderService(
	snapshots techpack.SnapshotRepository,
	renderer Renderer,
	artifacts cache.ArtifactCache,
	store storage.ObjectStore,
	cfg Config,
	opts ...Option,
) *RenderService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mode := cfg.Mode
	if mode != ModeDocument {
		mode = ModePage
	}

	s := &RenderService{
		snapshots: snapshots,
		renderer:  renderer,
		artifacts: artifacts,
		store:     store,
		planner:   techpack.NewPagePlanner(cfg.Pagination),
		composer:  techpack.NewOverlayComposer(techpack.WithLogoTable(cfg.Logos)),
		mode:      mode,
		ttl:       cfg.TTL,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.templates == nil {
		s.templates = printing.NewTemplateEngine(printing.WithClock(s.now))
	}
	if s.assembler == nil {
		s.assembler = printing.NewAssembler()
	}
	s.bulk = NewBulkOrchestrator(s, store, BulkConfig{
		Parallelism:  renderer.Size(),
		MaxDocuments: cfg.MaxBulkDocuments,
		Logger:       logger,
	})
	return s
}

// Mode returns the configured render mode
func (s *RenderService) Mode() string {
	return s.mode
}

// =============================================================================
// Exposed operations
// =============================================================================

// Generate produces the complete PDF of a document. A cached artifact for
// the same content version and options is returned without rendering.
func (s *RenderService) Generate(ctx context.Context, documentID string, options techpack.RenderOptions) (*techpack.Artifact, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanGenerate,
		telemetry.WithAttribute(telemetry.SpanAttrDocumentID, documentID))
	defer span.End()

	run, err := s.prepare(ctx, documentID, options)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrContentVersion, run.snapshot.ContentVersion,
		telemetry.SpanAttrVariant, options.Variant())

	key := cache.DocumentKey(run.snapshot.DocumentID, run.snapshot.ContentVersion, options.Variant())
	if hit := s.lookup(ctx, key); hit != nil {
		telemetry.SetAttributes(span, telemetry.SpanAttrCacheHit, true, telemetry.SpanAttrPages, hit.Pages)
		return hit, nil
	}

	plan, err := s.planner.Plan(run.snapshot)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	overlay := s.composer.Compose(run.snapshot)
	logo := s.loadLogo(ctx, overlay)

	var data []byte
	if s.mode == ModeDocument {
		data, err = s.renderDocument(ctx, run.snapshot, plan, options, overlay, logo)
	} else {
		data, err = s.renderPages(ctx, run.snapshot, plan, options, overlay, logo)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	artifact := &techpack.Artifact{
		DocumentID:     run.snapshot.DocumentID,
		ContentVersion: run.snapshot.ContentVersion,
		Kind:           techpack.ArtifactDocument,
		Format:         techpack.OutputPDF,
		PageIndex:      -1,
		Pages:          s.pageCount(run.snapshot, plan, data),
		Data:           data,
		CreatedAt:      s.now(),
	}
	s.storeArtifact(ctx, key, artifact, s.ttl.Document, run)

	telemetry.SetAttributes(span, telemetry.SpanAttrCacheHit, false, telemetry.SpanAttrPages, artifact.Pages)
	s.logger.Info("Tech pack generated",
		zap.String("document_id", artifact.DocumentID),
		zap.String("content_version", artifact.ContentVersion),
		zap.Int("pages", artifact.Pages),
		zap.Int("bytes", artifact.Size()))
	return artifact, nil
}

// Preview renders a single 1-based page of a document as PNG
func (s *RenderService) Preview(ctx context.Context, documentID string, pageNumber int, options techpack.RenderOptions) (*techpack.Artifact, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanPreview,
		telemetry.WithAttribute(telemetry.SpanAttrDocumentID, documentID),
		telemetry.WithAttribute(telemetry.SpanAttrPageIndex, pageNumber-1))
	defer span.End()

	run, err := s.prepare(ctx, documentID, options)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	plan, err := s.planner.Plan(run.snapshot)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	page, ok := plan.Page(pageNumber - 1)
	if !ok {
		err := techpack.NewPageOutOfRangeError(pageNumber, plan.Len())
		telemetry.RecordError(span, err)
		return nil, err
	}

	key := cache.PreviewKey(run.snapshot.DocumentID, run.snapshot.ContentVersion, options.Variant(), page.PageIndex)
	if hit := s.lookup(ctx, key); hit != nil {
		telemetry.SetAttributes(span, telemetry.SpanAttrCacheHit, true)
		return hit, nil
	}

	overlay := s.composer.Compose(run.snapshot)
	logo := s.loadLogo(ctx, overlay)

	result, err := s.renderPage(ctx, run.snapshot, plan, page, options, overlay, logo, techpack.OutputPNG)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	artifact := &techpack.Artifact{
		DocumentID:     run.snapshot.DocumentID,
		ContentVersion: run.snapshot.ContentVersion,
		Kind:           techpack.ArtifactPreview,
		Format:         techpack.OutputPNG,
		PageIndex:      page.PageIndex,
		Pages:          plan.Len(),
		Data:           result.Data,
		CreatedAt:      s.now(),
	}
	s.storeArtifact(ctx, key, artifact, s.ttl.Preview, run)
	telemetry.SetAttributes(span, telemetry.SpanAttrCacheHit, false)
	return artifact, nil
}

// BulkGenerate generates several documents, isolating failures per document.
// Page jobs of all documents of the run share the renderer capacity.
func (s *RenderService) BulkGenerate(ctx context.Context, documentIDs []string, options techpack.RenderOptions) (*BulkResult, error) {
	return s.bulk.RunBulk(withSubmitLimiter(ctx, s.renderer.Size()), documentIDs, options)
}

// Describe reports the page estimate and whether the document can be
// generated. An invalid snapshot is reported in the description, not as an error.
func (s *RenderService) Describe(ctx context.Context, documentID string) (*Description, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanDescribe,
		telemetry.WithAttribute(telemetry.SpanAttrDocumentID, documentID))
	defer span.End()

	run, err := s.prepare(ctx, documentID, techpack.DefaultRenderOptions())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	key := cache.MetaKey(run.snapshot.DocumentID, run.snapshot.ContentVersion)
	if hit := s.lookup(ctx, key); hit != nil {
		var desc Description
		if err := json.Unmarshal(hit.Data, &desc); err == nil {
			desc.CacheHit = true
			return &desc, nil
		}
		s.logger.Warn("Discarding undecodable cached description", zap.String("key", key.String()))
	}

	desc := s.describe(run.snapshot)

	payload, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode description: %w", err)
	}
	s.storeArtifact(ctx, key, &techpack.Artifact{
		DocumentID:     desc.DocumentID,
		ContentVersion: desc.ContentVersion,
		Kind:           techpack.ArtifactMeta,
		PageIndex:      -1,
		Pages:          desc.EstimatedPages,
		Data:           payload,
		CreatedAt:      s.now(),
	}, s.ttl.Meta, run)
	return desc, nil
}

func (s *RenderService) describe(snapshot *techpack.Snapshot) *Description {
	desc := &Description{
		DocumentID:          snapshot.DocumentID,
		ContentVersion:      snapshot.ContentVersion,
		EstimatedPages:      s.planner.EstimatePages(snapshot),
		PagesByBlock:        s.planner.EstimateByBlock(snapshot),
		CanGenerate:         true,
		LifecycleStage:      snapshot.LifecycleStage,
		SupportedFormats:    techpack.SupportedOutputFormats(),
		SupportedPaperSizes: techpack.AllPaperSizes(),
	}
	if overlay := s.composer.Compose(snapshot); overlay.HasWatermark() {
		desc.Watermark = overlay.WatermarkText
	}

	var invalid *techpack.InvalidSnapshotError
	if err := snapshot.Validate(); errors.As(err, &invalid) {
		desc.CanGenerate = false
		desc.Problems = invalid.Problems
	}
	return desc
}

// =============================================================================
// Invalidation hooks
// =============================================================================

// OnDocumentMutated invalidates every cached artifact of a document. It
// returns only after invalidation completed; an error means the mutation
// must not be acknowledged.
func (s *RenderService) OnDocumentMutated(ctx context.Context, documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return shared.NewDomainError("INVALID_INPUT", "Document ID is required")
	}
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanInvalidate,
		telemetry.WithAttribute(telemetry.SpanAttrDocumentID, documentID))
	defer span.End()

	if err := s.artifacts.Invalidate(ctx, documentID); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to invalidate document %s: %w", documentID, err)
	}
	s.logger.Debug("Document artifacts invalidated", zap.String("document_id", documentID))
	return nil
}

// OnDocumentsMutated invalidates several documents at once
func (s *RenderService) OnDocumentsMutated(ctx context.Context, documentIDs []string) error {
	ids := make([]string, 0, len(documentIDs))
	for _, id := range documentIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return shared.NewDomainError("INVALID_INPUT", "At least one document ID is required")
	}
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanInvalidate,
		telemetry.WithAttribute(telemetry.SpanAttrDocuments, len(ids)))
	defer span.End()

	if err := s.artifacts.InvalidateMany(ctx, ids); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to invalidate %d documents: %w", len(ids), err)
	}
	return nil
}

// InvalidatePattern drops every cached artifact whose key starts with prefix
func (s *RenderService) InvalidatePattern(ctx context.Context, prefix string) error {
	if err := s.artifacts.InvalidatePattern(ctx, prefix); err != nil {
		if errors.Is(err, cache.ErrEmptyPrefix) {
			return shared.NewDomainError("INVALID_INPUT", "Cache key prefix is required")
		}
		return fmt.Errorf("failed to invalidate prefix %q: %w", prefix, err)
	}
	s.logger.Info("Artifact cache prefix invalidated", zap.String("prefix", prefix))
	return nil
}

// FlushCache drops every cached artifact
func (s *RenderService) FlushCache(ctx context.Context) error {
	if err := s.artifacts.FlushAll(ctx); err != nil {
		return fmt.Errorf("failed to flush artifact cache: %w", err)
	}
	s.logger.Info("Artifact cache flushed")
	return nil
}

// =============================================================================
// Pipeline stages
// =============================================================================

// pipelineRun carries the snapshot of one request and the invalidation
// fence read before it was loaded
type pipelineRun struct {
	snapshot *techpack.Snapshot
	fence    int64
	fenced   bool
}

func (s *RenderService) prepare(ctx context.Context, documentID string, options techpack.RenderOptions) (*pipelineRun, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Document ID is required")
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	// The fence must be read before the snapshot so a concurrent
	// invalidation makes the eventual store a no-op.
	run := &pipelineRun{}
	fence, err := s.artifacts.Fence(ctx, documentID)
	if err != nil {
		s.logger.Warn("Artifact cache fence unavailable, result will not be cached",
			zap.String("document_id", documentID), zap.Error(err))
	} else {
		run.fence = fence
		run.fenced = true
	}

	snapshot, err := s.snapshots.GetDocumentSnapshot(ctx, documentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Tech pack %s not found", documentID))
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Tech pack %s not found", documentID))
	}
	run.snapshot = snapshot
	return run, nil
}

// lookup returns a cached artifact, treating cache faults as misses
func (s *RenderService) lookup(ctx context.Context, key cache.Key) *techpack.Artifact {
	artifact, err := s.artifacts.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Artifact cache read failed, rendering", zap.String("key", key.String()), zap.Error(err))
		return nil
	}
	return artifact
}

// storeArtifact writes the artifact under the fence of the run. Stores are
// skipped for cancelled requests and for runs without a fence.
func (s *RenderService) storeArtifact(ctx context.Context, key cache.Key, artifact *techpack.Artifact, ttl time.Duration, run *pipelineRun) {
	if ctx.Err() != nil || !run.fenced {
		return
	}
	stored, err := s.artifacts.PutFenced(ctx, key, artifact, ttl, run.fence)
	if err != nil {
		s.logger.Warn("Artifact cache write failed", zap.String("key", key.String()), zap.Error(err))
		return
	}
	if !stored {
		telemetry.AddEvent(telemetry.SpanFromContext(ctx), "stale_artifact_dropped", "key", key.String())
		s.logger.Debug("Dropped artifact rendered before an invalidation", zap.String("key", key.String()))
	}
}

// pageCount measures the rendered document. Content taller than a page
// overflows, so the result can exceed the plan. An unreadable PDF reports
// the planned count.
func (s *RenderService) pageCount(snapshot *techpack.Snapshot, plan *techpack.PagePlan, data []byte) int {
	n, err := s.assembler.PageCount(data)
	if err != nil || n < 1 {
		s.logger.Warn("Could not count rendered pages, reporting the plan",
			zap.String("document_id", snapshot.DocumentID),
			zap.Int("planned", plan.Len()),
			zap.Error(err))
		return plan.Len()
	}
	if n != plan.Len() {
		s.logger.Info("Rendered page count differs from the plan",
			zap.String("document_id", snapshot.DocumentID),
			zap.Int("planned", plan.Len()),
			zap.Int("rendered", n))
	}
	return n
}

// submitLimiterKey carries a semaphore shared by every submission of one
// bulk run. Its weight is the renderer size, so a run never queues more
// jobs than there are slots and cannot saturate the pool on its own.
type submitLimiterKey struct{}

func withSubmitLimiter(ctx context.Context, limit int) context.Context {
	return context.WithValue(ctx, submitLimiterKey{}, semaphore.NewWeighted(int64(max(1, limit))))
}

// submit hands the job to the renderer, first taking a run slot when the
// request belongs to a bulk run
func (s *RenderService) submit(ctx context.Context, job *printing.RenderJob) (*printing.RenderResult, error) {
	if limiter, ok := ctx.Value(submitLimiterKey{}).(*semaphore.Weighted); ok {
		if err := limiter.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer limiter.Release(1)
	}
	return s.renderer.Submit(ctx, job)
}

// loadLogo fetches the overlay logo. Failures omit the logo.
func (s *RenderService) loadLogo(ctx context.Context, overlay *techpack.OverlayDescriptor) *printing.Logo {
	if overlay == nil || overlay.Logo == nil || s.store == nil {
		return nil
	}
	obj, err := s.store.Get(ctx, overlay.Logo.Key)
	if err != nil {
		s.logger.Warn("Logo asset unavailable, rendering without logo",
			zap.String("key", overlay.Logo.Key),
			zap.String("owner", overlay.Logo.Owner),
			zap.Error(err))
		return nil
	}
	return &printing.Logo{Data: obj.Data, ContentType: obj.ContentType}
}

// renderPages submits one job per planned page and assembles the results
// in plan order. Fan-out never exceeds the renderer's capacity.
func (s *RenderService) renderPages(ctx context.Context, snapshot *techpack.Snapshot, plan *techpack.PagePlan,
	options techpack.RenderOptions, overlay *techpack.OverlayDescriptor, logo *printing.Logo) ([]byte, error) {
	pages := make([]printing.PageArtifact, plan.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.renderer.Size()))
	for _, page := range plan.Pages {
		g.Go(func() error {
			result, err := s.renderPage(gctx, snapshot, plan, page, options, overlay, logo, techpack.OutputPDF)
			if err != nil {
				return err
			}
			pages[page.PageIndex] = printing.PageArtifact{PageIndex: page.PageIndex, Data: result.Data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	data, err := s.assembler.Assemble(pages)
	if err != nil {
		return nil, &techpack.RenderFailedError{DocumentID: snapshot.DocumentID, PageIndex: -1, Err: err}
	}
	return data, nil
}

func (s *RenderService) renderPage(ctx context.Context, snapshot *techpack.Snapshot, plan *techpack.PagePlan, page techpack.PageEntry,
	options techpack.RenderOptions, overlay *techpack.OverlayDescriptor, logo *printing.Logo, output techpack.OutputFormat) (*printing.RenderResult, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRenderPage,
		telemetry.WithAttribute(telemetry.SpanAttrDocumentID, snapshot.DocumentID),
		telemetry.WithAttribute(telemetry.SpanAttrPageIndex, page.PageIndex))
	defer span.End()

	html, err := s.templates.RenderPage(&printing.PageContent{
		Snapshot:   snapshot,
		Page:       page,
		TotalPages: plan.Len(),
		Options:    options,
		Overlay:    overlay,
		Logo:       logo,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, &techpack.RenderFailedError{DocumentID: snapshot.DocumentID, PageIndex: page.PageIndex, Err: err}
	}

	job := printing.NewRenderJob(snapshot.DocumentID, snapshot.ContentVersion, page.PageIndex, s.request(snapshot, options, html, output))
	result, err := s.submit(ctx, job)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

func (s *RenderService) renderDocument(ctx context.Context, snapshot *techpack.Snapshot, plan *techpack.PagePlan,
	options techpack.RenderOptions, overlay *techpack.OverlayDescriptor, logo *printing.Logo) ([]byte, error) {
	html, err := s.templates.RenderDocument(snapshot, plan, options, overlay, logo)
	if err != nil {
		return nil, &techpack.RenderFailedError{DocumentID: snapshot.DocumentID, PageIndex: -1, Err: err}
	}

	job := printing.NewRenderJob(snapshot.DocumentID, snapshot.ContentVersion, -1, s.request(snapshot, options, html, techpack.OutputPDF))
	result, err := s.submit(ctx, job)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (s *RenderService) request(snapshot *techpack.Snapshot, options techpack.RenderOptions, html string, output techpack.OutputFormat) *printing.RenderRequest {
	req := &printing.RenderRequest{
		HTML:         html,
		Output:       output,
		PaperSize:    options.Format,
		Orientation:  options.Orientation,
		Margins:      options.Margins,
		ImageQuality: options.ImageQuality,
		Title:        snapshot.Article.StyleNumber + " " + snapshot.Article.Name,
	}
	if output == techpack.OutputPDF {
		req.FooterHTML = s.templates.FooterHTML(snapshot)
	}
	return req
}
