package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fableloom/chronicler/agent"
	"github.com/fableloom/chronicler/archive"
	"github.com/fableloom/chronicler/brief"
	"github.com/fableloom/chronicler/config"
	"github.com/fableloom/chronicler/internal/metrics"
	"github.com/fableloom/chronicler/internal/pool"
	"github.com/fableloom/chronicler/internal/telemetry"
	"github.com/fableloom/chronicler/memory"
	"github.com/fableloom/chronicler/types"
	"github.com/fableloom/chronicler/visibility"
	"github.com/fableloom/chronicler/world"
)

// Publisher pushes an emitted brief to live consumers. *stream.Hub
// satisfies it; a nil publisher disables streaming.
type Publisher interface {
	Publish(brief types.TurnBrief)
}

// TurnResult is one completed turn: every agent's brief plus the
// turn's accounting.
type TurnResult struct {
	TurnID        string            `json:"turn_id"`
	Turn          int               `json:"turn"`
	Briefs        []types.TurnBrief `json:"briefs"`
	DegradedCount int               `json:"degraded_count"`
	Duration      time.Duration     `json:"duration"`
}

// Options carries the engine's optional sinks. Any nil field simply
// disables that concern.
type Options struct {
	Archive   archive.Archive
	Publisher Publisher
	Snapshots *memory.SnapshotStore
	Recorder  *TurnRecorder
	Collector *metrics.Collector
	// Scenario names the loaded scenario in turn records.
	Scenario string
	// ConsolidateEvery runs memory consolidation every N turns;
	// 0 disables the cadence.
	ConsolidateEvery int
}

// Engine drives turns over a roster: parallel assembly, then a
// serialized commit phase.
type Engine struct {
	cfg       config.EngineConfig
	assembler *brief.Assembler
	filter    *visibility.Filter
	roster    *agent.Roster
	pool      *pool.WorkerPool
	opts      Options
	tracer    trace.Tracer
	logger    *zap.Logger

	mu        sync.Mutex // serializes turns and the commit phase
	lastStats map[string]types.MemoryStats
}

// New wires an engine. The worker pool is owned by the engine and
// torn down by Close.
func New(cfg config.EngineConfig, assembler *brief.Assembler, filter *visibility.Filter, roster *agent.Roster, opts Options, logger *zap.Logger) (*Engine, error) {
	if assembler == nil || filter == nil || roster == nil {
		return nil, types.NewError(types.ErrInvalidConfiguration, "engine requires assembler, filter and roster")
	}
	if roster.Len() == 0 {
		return nil, types.NewError(types.ErrInvalidConfiguration, "engine requires at least one agent")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = config.DefaultEngineConfig().Workers
	}
	queue := cfg.QueueSize
	if queue < roster.Len() {
		queue = roster.Len()
	}
	return &Engine{
		cfg:       cfg,
		assembler: assembler,
		filter:    filter,
		roster:    roster,
		pool: pool.NewWorkerPool(pool.Config{
			MaxWorkers: workers,
			QueueSize:  queue,
		}),
		opts:      opts,
		tracer:    telemetry.Tracer(),
		logger:    logger.With(zap.String("component", "engine")),
		lastStats: make(map[string]types.MemoryStats),
	}, nil
}

// RunTurn assembles one brief per agent against the given world
// snapshot, then commits the turn's writes. On any assembly error or
// cancellation nothing is committed and no briefs are exposed.
func (e *Engine) RunTurn(ctx context.Context, st *world.State) (*TurnResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	turnID := fmt.Sprintf("turn-%d", st.Turn)
	agents := e.roster.All()

	ctx, span := e.tracer.Start(ctx, "engine.run_turn", trace.WithAttributes(
		attribute.Int("turn", st.Turn),
		attribute.Int("agents", len(agents)),
	))
	defer span.End()

	results := make([]*brief.Result, len(agents))
	durations := make([]time.Duration, len(agents))

	g, gctx := errgroup.WithContext(ctx)
	for i, ag := range agents {
		g.Go(func() error {
			return e.pool.SubmitWait(gctx, func(taskCtx context.Context) error {
				aCtx, aSpan := e.tracer.Start(taskCtx, "engine.assemble",
					trace.WithAttributes(attribute.String("agent_id", ag.ID)))
				defer aSpan.End()

				t0 := time.Now()
				res, err := e.assembler.Assemble(aCtx, ag, st, turnID)
				durations[i] = time.Since(t0)
				if err != nil {
					aSpan.RecordError(err)
					return fmt.Errorf("assemble %s: %w", ag.ID, err)
				}
				aSpan.SetAttributes(
					attribute.String("status", res.Brief.Status()),
					attribute.Int("tokens", res.Brief.TokenCount),
					attribute.Int("snippets", len(res.Brief.Snippets)),
				)
				for _, stage := range res.PruneStages {
					aSpan.AddEvent("budget_prune", trace.WithAttributes(attribute.String("stage", stage)))
				}
				results[i] = res
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		e.recordTurn("aborted", time.Since(start), len(agents))
		e.logger.Warn("turn aborted, nothing committed",
			zap.String("turn_id", turnID), zap.Error(err))
		return nil, err
	}

	result := e.commit(ctx, st, turnID, agents, results, durations)
	result.Duration = time.Since(start)
	e.recordTurn("ok", result.Duration, len(agents))
	if e.opts.Recorder != nil {
		if err := e.opts.Recorder.Record(ctx, &TurnRecord{
			TurnID:        turnID,
			Turn:          st.Turn,
			Scenario:      e.opts.Scenario,
			AgentCount:    len(agents),
			DegradedCount: result.DegradedCount,
			DurationMs:    result.Duration.Milliseconds(),
		}); err != nil {
			e.logger.Warn("turn record write failed", zap.String("turn_id", turnID), zap.Error(err))
		}
	}

	e.logger.Info("turn complete",
		zap.String("turn_id", turnID),
		zap.Int("agents", len(agents)),
		zap.Int("degraded", result.DegradedCount),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// commit is the serialized write phase: memory touches, sightings,
// cadenced consolidation, persistence, archive and stream emission.
// It runs only after every assembly succeeded.
func (e *Engine) commit(ctx context.Context, st *world.State, turnID string, agents []*agent.Agent, results []*brief.Result, durations []time.Duration) *TurnResult {
	commitCtx := ctx
	if e.cfg.CommitTimeout > 0 {
		var cancel context.CancelFunc
		commitCtx, cancel = context.WithTimeout(ctx, e.cfg.CommitTimeout)
		defer cancel()
	}

	consolidate := e.opts.ConsolidateEvery > 0 && st.Turn%e.opts.ConsolidateEvery == 0
	out := &TurnResult{TurnID: turnID, Turn: st.Turn, Briefs: make([]types.TurnBrief, 0, len(agents))}

	for i, ag := range agents {
		res := results[i]

		ag.Memory.AdvanceTurn(st.Turn)
		memory.TouchSelected(ag.Memory, res.Selected, st.Turn)
		e.filter.Observe(ag.ID, res.VisibleSet, st)

		if consolidate {
			c0 := time.Now()
			report := ag.Memory.Consolidate()
			if e.opts.Collector != nil {
				e.opts.Collector.RecordConsolidation(time.Since(c0), report.Merged)
				for p := 0; p < report.Promoted; p++ {
					e.opts.Collector.RecordPromotion(string(types.MemoryWorking), string(types.MemoryEpisodic))
				}
			}
			if report.Changed() {
				e.logger.Debug("memory consolidated",
					zap.String("agent_id", ag.ID),
					zap.Int("promoted", report.Promoted),
					zap.Int("merged", report.Merged))
			}
		}

		if e.opts.Snapshots != nil {
			if err := e.opts.Snapshots.SaveSnapshot(commitCtx, ag.ID, ag.Memory.Snapshot()); err != nil {
				e.logger.Warn("memory snapshot failed", zap.String("agent_id", ag.ID), zap.Error(err))
			}
		}
		if e.opts.Archive != nil {
			if err := e.opts.Archive.Put(commitCtx, res.Brief); err != nil {
				e.logger.Warn("brief archive failed", zap.String("agent_id", ag.ID), zap.Error(err))
			}
		}
		if e.opts.Publisher != nil {
			e.opts.Publisher.Publish(res.Brief)
		}

		e.recordAgent(ag, res, durations[i])
		if res.Brief.Degraded {
			out.DegradedCount++
		}
		out.Briefs = append(out.Briefs, res.Brief)
	}
	return out
}

// recordAgent emits the per-agent metrics for one assembly.
func (e *Engine) recordAgent(ag *agent.Agent, res *brief.Result, duration time.Duration) {
	if e.opts.Collector == nil {
		return
	}
	e.opts.Collector.RecordBriefAssembly(ag.ID, res.Brief.Status(), duration,
		res.Brief.TokenCount, len(res.Brief.Snippets))
	for _, stage := range res.PruneStages {
		e.opts.Collector.RecordBudgetPrune(stage)
	}
	if res.Brief.DegradedReason == types.DegradeIndexUnavailable {
		e.opts.Collector.RecordIndexUnavailable()
	}

	stats := ag.Memory.Stats()
	for tier, count := range stats.ByTier {
		e.opts.Collector.SetMemoryItems(ag.ID, string(tier), count)
	}
	if prev, ok := e.lastStats[ag.ID]; ok {
		for n := prev.Evictions; n < stats.Evictions; n++ {
			e.opts.Collector.RecordEviction("all")
		}
	}
	e.lastStats[ag.ID] = stats
}

func (e *Engine) recordTurn(status string, duration time.Duration, agents int) {
	if e.opts.Collector != nil {
		e.opts.Collector.RecordTurn(status, duration, agents)
	}
}

// Close tears down the worker pool.
func (e *Engine) Close() {
	e.pool.Close()
}
