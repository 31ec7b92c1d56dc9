package printing

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/techpack/backend/internal/domain/techpack"
)

const (
	defaultSubmitTimeout          = 5 * time.Second
	defaultJobTimeout             = 30 * time.Second
	defaultMaxConsecutiveFailures = 3
	defaultHealthCheckInterval    = 30 * time.Second
	defaultHealthCheckTimeout     = 5 * time.Second
	defaultSpawnTimeout           = 30 * time.Second
	defaultTerminateGrace         = 5 * time.Second

	// MinPoolSize and MaxPoolSize bound the automatic pool size
	MinPoolSize = 1
	MaxPoolSize = 8
)

// SlotState is the lifecycle state of a pool slot
type SlotState string

const (
	SlotIdle        SlotState = "idle"
	SlotBusy        SlotState = "busy"
	SlotRecycling   SlotState = "recycling"
	SlotQuarantined SlotState = "quarantined"
)

// Job outcomes reported to the observer
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
	OutcomeSaturated = "saturated"
)

// ResolvePoolSize returns size when positive, otherwise GOMAXPROCS/2
// clamped to [MinPoolSize, MaxPoolSize].
func ResolvePoolSize(size int) int {
	if size > 0 {
		return size
	}
	return max(MinPoolSize, min(runtime.GOMAXPROCS(0)/2, MaxPoolSize))
}

// RenderJob is one unit of work for the pool: a page or a whole document.
// It is created by the pipeline, claimed by exactly one slot, then discarded.
type RenderJob struct {
	ID             string
	DocumentID     string
	ContentVersion string
	// PageIndex is the 0-based page of the plan, -1 for whole-document jobs
	PageIndex int
	Request   *RenderRequest
}

// NewRenderJob creates a job with a fresh ID
func NewRenderJob(documentID, contentVersion string, pageIndex int, req *RenderRequest) *RenderJob {
	return &RenderJob{
		ID:             uuid.NewString(),
		DocumentID:     documentID,
		ContentVersion: contentVersion,
		PageIndex:      pageIndex,
		Request:        req,
	}
}

// PoolConfig configures a RenderPool
type PoolConfig struct {
	// Size is the number of slots. Zero resolves from GOMAXPROCS
	Size int
	// SubmitTimeout bounds how long Submit waits for a free slot
	SubmitTimeout time.Duration
	// JobTimeout is the render budget of one job
	JobTimeout time.Duration
	// MaxConsecutiveFailures quarantines a slot after this many crashes in a row
	MaxConsecutiveFailures int
	// HealthCheckInterval between idle-engine checks. Negative disables checks
	HealthCheckInterval time.Duration
	// HealthCheckTimeout bounds one engine check
	HealthCheckTimeout time.Duration
	// SpawnTimeout bounds engine start-up
	SpawnTimeout time.Duration
	// OnJobDone is called after every job with its outcome (optional)
	OnJobDone func(outcome string, elapsed time.Duration)
	Logger    *zap.Logger
}

func (c *PoolConfig) applyDefaults() {
	c.Size = ResolvePoolSize(c.Size)
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = defaultSubmitTimeout
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = defaultJobTimeout
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = defaultMaxConsecutiveFailures
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = defaultHealthCheckInterval
	}
	if c.HealthCheckTimeout == 0 {
		c.HealthCheckTimeout = defaultHealthCheckTimeout
	}
	if c.SpawnTimeout == 0 {
		c.SpawnTimeout = defaultSpawnTimeout
	}
	if c.OnJobDone == nil {
		c.OnJobDone = func(string, time.Duration) {}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// slot is one pool position. Fields are guarded by RenderPool.mu.
type slot struct {
	id       int
	engine   Engine // nil until first claim or after a failed recycle
	state    SlotState
	failures int // consecutive
	jobs     int
}

// SlotInfo is a read-only view of a slot
type SlotInfo struct {
	ID                  int       `json:"id"`
	State               SlotState `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Jobs                int       `json:"jobs"`
	Spawned             bool      `json:"spawned"`
}

// PoolStats is a snapshot of the pool counters
type PoolStats struct {
	Size        int        `json:"size"`
	Idle        int        `json:"idle"`
	Busy        int        `json:"busy"`
	Recycling   int        `json:"recycling"`
	Quarantined int        `json:"quarantined"`
	Running     int64      `json:"running"`
	PeakRunning int64      `json:"peak_running"`
	Completed   int64      `json:"completed"`
	Failed      int64      `json:"failed"`
	TimedOut    int64      `json:"timed_out"`
	Cancelled   int64      `json:"cancelled"`
	Saturated   int64      `json:"saturated"`
	Recycled    int64      `json:"recycled"`
	Slots       []SlotInfo `json:"slots"`
}

// RenderPool is a bounded pool of renderer engines. At most Size jobs
// render at any instant; every render in the process goes through it.
type RenderPool struct {
	config  PoolConfig
	factory EngineFactory
	logger  *zap.Logger

	mu     sync.Mutex
	slots  []*slot
	idle   chan *slot
	closed bool

	running   atomic.Int64
	peak      atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	timedOut  atomic.Int64
	cancelled atomic.Int64
	saturated atomic.Int64
	recycled  atomic.Int64

	wg     sync.WaitGroup // in-flight jobs and recycles
	stopCh chan struct{}
	loopWG sync.WaitGroup
}

// NewRenderPool creates a pool. Engines are spawned lazily on first use.
func NewRenderPool(config PoolConfig, factory EngineFactory) *RenderPool {
	config.applyDefaults()

	p := &RenderPool{
		config:  config,
		factory: factory,
		logger:  config.Logger,
		slots:   make([]*slot, config.Size),
		idle:    make(chan *slot, config.Size),
		stopCh:  make(chan struct{}),
	}
	for i := range p.slots {
		s := &slot{id: i, state: SlotIdle}
		p.slots[i] = s
		p.idle <- s
	}

	if config.HealthCheckInterval > 0 {
		p.loopWG.Add(1)
		go p.healthLoop()
	}
	return p
}

// Size returns the number of slots
func (p *RenderPool) Size() int {
	return p.config.Size
}

// JobTimeout returns the per-job render budget
func (p *RenderPool) JobTimeout() time.Duration {
	return p.config.JobTimeout
}

// Submit renders the job on the next free slot. It waits at most the
// submission timeout for a slot (PoolSaturatedError) and at most the job
// timeout for the render (RenderTimeoutError). Cancelling ctx terminates
// the engine in flight. Jobs are never retried by the pool.
func (p *RenderPool) Submit(ctx context.Context, job *RenderJob) (*RenderResult, error) {
	if !p.enter() {
		return nil, NewRenderError(ErrCodeEngineClosed, "render pool is closed", nil)
	}
	defer p.wg.Done()

	start := time.Now()
	s, err := p.claim(ctx)
	if err != nil {
		var saturated *techpack.PoolSaturatedError
		if errors.As(err, &saturated) {
			p.saturated.Add(1)
			p.config.OnJobDone(OutcomeSaturated, time.Since(start))
		}
		return nil, err
	}

	n := p.running.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	defer p.running.Add(-1)

	result, outcome, err := p.execute(ctx, s, job)
	switch outcome {
	case OutcomeSuccess:
		p.completed.Add(1)
	case OutcomeTimeout:
		p.timedOut.Add(1)
	case OutcomeCancelled:
		p.cancelled.Add(1)
	default:
		p.failed.Add(1)
	}
	p.config.OnJobDone(outcome, time.Since(start))
	return result, err
}

func (p *RenderPool) enter() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	return true
}

// claim takes an idle slot and marks it busy
func (p *RenderPool) claim(ctx context.Context) (*slot, error) {
	timer := time.NewTimer(p.config.SubmitTimeout)
	defer timer.Stop()

	select {
	case s := <-p.idle:
		p.mu.Lock()
		s.state = SlotBusy
		p.mu.Unlock()
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, &techpack.PoolSaturatedError{Waited: p.config.SubmitTimeout}
	case <-p.stopCh:
		return nil, NewRenderError(ErrCodeEngineClosed, "render pool is closed", nil)
	}
}

type renderOutcome struct {
	result *RenderResult
	err    error
}

func (p *RenderPool) execute(ctx context.Context, s *slot, job *RenderJob) (*RenderResult, string, error) {
	engine, err := p.ensureEngine(ctx, s)
	if err != nil {
		if ctx.Err() != nil {
			p.release(s, false)
			return nil, OutcomeCancelled, ctx.Err()
		}
		p.fail(s, nil, nil, err)
		return nil, OutcomeFailed, &techpack.RenderFailedError{DocumentID: job.DocumentID, PageIndex: job.PageIndex, Err: err}
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	done := make(chan renderOutcome, 1)
	go func() {
		res, err := engine.Render(jobCtx, job.Request)
		done <- renderOutcome{result: res, err: err}
	}()

	var out renderOutcome
	finished := false
	select {
	case out = <-done:
		finished = true
	case <-jobCtx.Done():
		// The engine may ignore ctx. Recycling closes it, which kills the process.
	}

	// The render goroutine has exited when finished, nothing left to wait on
	pending := done
	if finished {
		pending = nil
	}

	logger := p.logger.With(
		zap.String("job_id", job.ID),
		zap.String("document_id", job.DocumentID),
		zap.Int("page_index", job.PageIndex),
		zap.Int("slot", s.id))

	switch {
	case finished && out.err == nil && ctx.Err() != nil:
		p.release(s, true)
		return nil, OutcomeCancelled, ctx.Err()

	case finished && out.err == nil:
		p.release(s, true)
		return out.result, OutcomeSuccess, nil

	case ctx.Err() != nil:
		logger.Debug("render cancelled by caller, terminating engine")
		p.recycle(s, engine, pending, false)
		return nil, OutcomeCancelled, ctx.Err()

	case jobCtx.Err() != nil:
		logger.Warn("render exceeded budget, terminating engine", zap.Duration("budget", p.config.JobTimeout))
		p.recycle(s, engine, pending, true)
		return nil, OutcomeTimeout, &techpack.RenderTimeoutError{
			DocumentID: job.DocumentID,
			PageIndex:  job.PageIndex,
			Budget:     p.config.JobTimeout,
		}

	case isRequestError(out.err):
		p.release(s, false)
		return nil, OutcomeFailed, &techpack.RenderFailedError{DocumentID: job.DocumentID, PageIndex: job.PageIndex, Err: out.err}
	}

	logger.Warn("render failed, recycling engine", zap.Error(out.err))
	p.fail(s, engine, nil, out.err)
	return nil, OutcomeFailed, &techpack.RenderFailedError{DocumentID: job.DocumentID, PageIndex: job.PageIndex, Err: out.err}
}

// ensureEngine spawns the slot's engine on first use
func (p *RenderPool) ensureEngine(ctx context.Context, s *slot) (Engine, error) {
	p.mu.Lock()
	engine := s.engine
	p.mu.Unlock()
	if engine != nil {
		return engine, nil
	}

	spawnCtx, cancel := context.WithTimeout(ctx, p.config.SpawnTimeout)
	defer cancel()
	engine, err := p.factory(spawnCtx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	s.engine = engine
	p.mu.Unlock()
	return engine, nil
}

// release returns a healthy slot to rotation
func (p *RenderPool) release(s *slot, succeeded bool) {
	p.mu.Lock()
	if succeeded {
		s.failures = 0
		s.jobs++
	}
	s.state = SlotIdle
	p.mu.Unlock()
	p.idle <- s
}

// fail counts a crash against the slot then recycles it
func (p *RenderPool) fail(s *slot, engine Engine, done <-chan renderOutcome, cause error) {
	p.recycle(s, engine, done, true)
	if engine == nil {
		p.logger.Warn("engine spawn failed", zap.Int("slot", s.id), zap.Error(cause))
	}
}

// recycle terminates the slot's engine and spawns a replacement in the
// background. countFailure adds to the consecutive failure count; the
// slot is quarantined once the count reaches the limit.
func (p *RenderPool) recycle(s *slot, engine Engine, done <-chan renderOutcome, countFailure bool) {
	p.mu.Lock()
	s.state = SlotRecycling
	s.engine = nil
	if countFailure {
		s.failures++
	}
	quarantine := s.failures >= p.config.MaxConsecutiveFailures
	p.mu.Unlock()

	p.recycled.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if engine != nil {
			if err := engine.Close(); err != nil {
				p.logger.Warn("failed to close engine", zap.Int("slot", s.id), zap.Error(err))
			}
			if done != nil {
				select {
				case <-done:
				case <-time.After(defaultTerminateGrace):
					p.logger.Error("engine did not stop after termination", zap.Int("slot", s.id))
				}
			}
		}

		if quarantine {
			p.quarantine(s)
			return
		}
		p.respawn(s)
	}()
}

func (p *RenderPool) respawn(s *slot) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.SpawnTimeout)
	defer cancel()

	engine, err := p.factory(ctx)

	p.mu.Lock()
	if err != nil {
		s.failures++
		if s.failures >= p.config.MaxConsecutiveFailures {
			p.mu.Unlock()
			p.logger.Warn("engine respawn failed", zap.Int("slot", s.id), zap.Error(err))
			p.quarantine(s)
			return
		}
		// Leave the engine unset; the next claim retries the spawn
		p.logger.Warn("engine respawn failed, will retry on next claim", zap.Int("slot", s.id), zap.Error(err))
	} else {
		s.engine = engine
	}
	closed := p.closed
	s.state = SlotIdle
	p.mu.Unlock()

	if closed && engine != nil {
		_ = engine.Close()
	}
	p.idle <- s
}

func (p *RenderPool) quarantine(s *slot) {
	p.mu.Lock()
	s.state = SlotQuarantined
	failures := s.failures
	p.mu.Unlock()
	p.logger.Error("render slot quarantined",
		zap.Int("slot", s.id),
		zap.Int("consecutive_failures", failures))
}

// ResetQuarantined returns every quarantined slot to rotation with a
// clean failure count. It returns the number of slots reset.
func (p *RenderPool) ResetQuarantined() int {
	p.mu.Lock()
	var reset []*slot
	for _, s := range p.slots {
		if s.state == SlotQuarantined {
			s.state = SlotIdle
			s.failures = 0
			s.engine = nil
			reset = append(reset, s)
		}
	}
	p.mu.Unlock()

	for _, s := range reset {
		p.idle <- s
	}
	if len(reset) > 0 {
		p.logger.Info("quarantined render slots reset", zap.Int("count", len(reset)))
	}
	return len(reset)
}

// healthLoop periodically checks idle engines
func (p *RenderPool) healthLoop() {
	defer p.loopWG.Done()

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.CheckHealth(context.Background())
		}
	}
}

// CheckHealth pings every idle engine once and recycles the unhealthy ones.
// It returns the number of engines recycled.
func (p *RenderPool) CheckHealth(ctx context.Context) int {
	recycled := 0
	for range len(p.idle) {
		var s *slot
		select {
		case s = <-p.idle:
		default:
			return recycled
		}

		p.mu.Lock()
		engine := s.engine
		s.state = SlotBusy
		p.mu.Unlock()

		if engine == nil {
			p.release(s, false)
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, p.config.HealthCheckTimeout)
		err := engine.Health(checkCtx)
		cancel()

		if err != nil {
			p.logger.Warn("engine failed health check, recycling", zap.Int("slot", s.id), zap.Error(err))
			p.recycle(s, engine, nil, true)
			recycled++
			continue
		}
		p.release(s, false)
	}
	return recycled
}

// Stats returns a snapshot of the pool state
func (p *RenderPool) Stats() PoolStats {
	stats := PoolStats{
		Size:        p.config.Size,
		Running:     p.running.Load(),
		PeakRunning: p.peak.Load(),
		Completed:   p.completed.Load(),
		Failed:      p.failed.Load(),
		TimedOut:    p.timedOut.Load(),
		Cancelled:   p.cancelled.Load(),
		Saturated:   p.saturated.Load(),
		Recycled:    p.recycled.Load(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.slots {
		switch s.state {
		case SlotIdle:
			stats.Idle++
		case SlotBusy:
			stats.Busy++
		case SlotRecycling:
			stats.Recycling++
		case SlotQuarantined:
			stats.Quarantined++
		}
		stats.Slots = append(stats.Slots, SlotInfo{
			ID:                  s.id,
			State:               s.state,
			ConsecutiveFailures: s.failures,
			Jobs:                s.jobs,
			Spawned:             s.engine != nil,
		})
	}
	return stats
}

// Close stops the health loop, waits for in-flight jobs and recycles, then
// closes every engine. New submissions fail immediately.
func (p *RenderPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopCh)
	p.loopWG.Wait()

	waitDone := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(waitDone)
	}()

	var err error
	select {
	case <-waitDone:
	case <-ctx.Done():
		err = ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.slots {
		if s.engine != nil {
			if cerr := s.engine.Close(); cerr != nil {
				p.logger.Warn("failed to close engine", zap.Int("slot", s.id), zap.Error(cerr))
			}
			s.engine = nil
		}
	}
	return err
}
