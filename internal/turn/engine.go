package turn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mohammad-safakhou/hously/config"
	"github.com/mohammad-safakhou/hously/internal/i18n"
	"github.com/mohammad-safakhou/hously/internal/telemetry"
)

var engineTracer = otel.Tracer("hously/internal/turn")

var (
	// ErrThreadBusy is returned when a turn is already running on the thread.
	ErrThreadBusy = errors.New("a turn is already in progress on this thread")

	// ErrClarificationPending is returned from Submit while the thread is
	// suspended; the caller must Resume with the human answer instead.
	ErrClarificationPending = errors.New("thread is awaiting a clarification answer")

	// ErrNotSuspended is returned from Resume when no clarification is pending.
	ErrNotSuspended = errors.New("thread has no pending clarification")
)

// Engine drives the full turn pipeline: compress, analyze, fan out, aggregate,
// persist. One turn per thread runs at a time; Submit and Resume return a
// Stream the caller drains while the pipeline runs in a background goroutine.
type Engine struct {
	compressor  *Compressor
	analyzer    *Analyzer
	dispatcher  *Dispatcher
	aggregator  *Aggregator
	checkpoints CheckpointManager
	cfg         config.TurnConfig
	rdb         *redis.Client
	logger      *log.Logger

	mu    sync.Mutex
	locks map[string]struct{}
}

func NewEngine(
	compressor *Compressor,
	analyzer *Analyzer,
	dispatcher *Dispatcher,
	aggregator *Aggregator,
	checkpoints CheckpointManager,
	cfg config.TurnConfig,
	rdb *redis.Client,
	logger *log.Logger,
) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[TURN] ", log.LstdFlags)
	}
	return &Engine{
		compressor:  compressor,
		analyzer:    analyzer,
		dispatcher:  dispatcher,
		aggregator:  aggregator,
		checkpoints: checkpoints,
		cfg:         cfg,
		rdb:         rdb,
		logger:      logger,
		locks:       make(map[string]struct{}),
	}
}

// Submit starts a new turn on a thread. It returns ErrThreadBusy while another
// turn is running and ErrClarificationPending while the thread is suspended.
func (e *Engine) Submit(ctx context.Context, threadID, userID, query, locale string) (*Stream, error) {
	if err := e.acquire(ctx, threadID); err != nil {
		return nil, err
	}

	snap, _, err := e.checkpoints.Load(ctx, threadID)
	if err != nil {
		e.release(threadID)
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if snap.State.Suspended() {
		e.release(threadID)
		return nil, ErrClarificationPending
	}

	snap.ThreadID = threadID
	if userID != "" {
		snap.UserID = userID
	}
	snap.Thread.ID = threadID
	snap.Thread.Messages = append(snap.Thread.Messages, Message{
		Role: RoleUser, Content: query, CreatedAt: time.Now().UTC(),
	})
	snap.State = NewState(snap.State, query, i18n.Normalize(locale))

	stream := NewStream(e.cfg.StreamBuffer)
	go e.run(ctx, threadID, snap, query, stream, true)
	return stream, nil
}

// Resume feeds the human answer into a suspended thread and re-runs analysis.
// The resumed turn starts from the checkpoint alone; no in-process state from
// the suspended turn survives.
func (e *Engine) Resume(ctx context.Context, threadID, answer, locale string) (*Stream, error) {
	if err := e.acquire(ctx, threadID); err != nil {
		return nil, err
	}

	snap, ok, err := e.checkpoints.Load(ctx, threadID)
	if err != nil {
		e.release(threadID)
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok || !snap.State.Suspended() {
		e.release(threadID)
		return nil, ErrNotSuspended
	}

	snap.Thread.Messages = append(snap.Thread.Messages, Message{
		Role: RoleUser, Content: answer, CreatedAt: time.Now().UTC(),
	})
	prev := snap.State.WithClarificationAnswered()
	locale = i18n.Normalize(locale)
	if locale == i18n.DefaultLocale && prev.Locale != "" {
		locale = prev.Locale
	}
	snap.State = NewState(prev, prev.OriginalQuery, locale)

	stream := NewStream(e.cfg.StreamBuffer)
	go e.run(ctx, threadID, snap, answer, stream, false)
	return stream, nil
}

// Clear deletes a thread's history and state and allocates a fresh thread id
// for the client to continue under.
func (e *Engine) Clear(ctx context.Context, threadID string) (string, error) {
	if err := e.acquire(ctx, threadID); err != nil {
		return "", err
	}
	defer e.release(threadID)
	if err := e.checkpoints.Delete(ctx, threadID); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

// run executes the pipeline for one turn and always emits exactly one
// terminal event. compress is false on resume: the clarification answer goes
// straight back to the analyzer. The turn context descends from the caller's,
// so a closed client connection cancels in-flight branches; checkpoint writes
// use a detached context because work already done must still be recorded.
func (e *Engine) run(parent context.Context, threadID string, snap Snapshot, latest string, stream *Stream, compress bool) {
	defer e.release(threadID)

	ctx, cancel := context.WithTimeout(parent, e.cfg.TurnTimeout)
	defer cancel()
	ctx, span := engineTracer.Start(ctx, "Engine.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("thread_id", threadID),
		attribute.Int64("generation", int64(snap.State.Generation)),
	)

	started := time.Now()
	outcome := "error"
	defer func() {
		telemetry.TurnsTotal.WithLabelValues(outcome).Inc()
		telemetry.TurnDuration.Observe(time.Since(started).Seconds())
	}()

	var pruneOK bool
	if compress {
		if summary, ok := e.compressor.Compress(ctx, snap.Thread); ok {
			snap.State.Summary = summary
			snap.Thread.Summary = summary
			pruneOK = true
		}
	}

	analysis := e.analyzer.Analyze(ctx, snap.Thread, latest)

	if analysis.Decision == DecideClarify {
		snap.State = snap.State.WithClarification(analysis.Clarification, latest)
		snap.Thread.Messages = append(snap.Thread.Messages, Message{
			Role: RoleAssistant, Content: analysis.Clarification, CreatedAt: time.Now().UTC(),
		})
		if err := e.persist(snap); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			stream.Fail("failed to save conversation state")
			return
		}
		outcome = "clarification"
		stream.Clarify(*snap.State.Clarification)
		return
	}

	snap.State = snap.State.WithQuestions(analysis.Rewritten, analysis.SubQuestions)

	// History may only shrink once the summary holds it and the turn is
	// committed to producing an answer.
	if pruneOK && snap.Thread.Summary != "" {
		snap.Thread.Messages = nil
	}

	langInstruction := i18n.Instruction(snap.State.Locale)
	snap.State = e.dispatcher.Dispatch(ctx, snap.State, langInstruction)

	for _, r := range snap.State.OrderedResults() {
		telemetry.BranchesTotal.WithLabelValues(r.Status).Inc()
	}

	answer := e.aggregator.Aggregate(ctx, snap.State, langInstruction, stream.Token)
	state, ok := snap.State.WithAnswer(answer)
	if !ok {
		// The dispatcher's barrier guarantees completeness; reaching here
		// means a declared index never got a result.
		span.SetStatus(codes.Error, "incomplete result set")
		stream.Fail("internal error: incomplete result set")
		return
	}
	snap.State = state

	snap.Thread.Messages = append(snap.Thread.Messages, Message{
		Role: RoleAssistant, Content: answer.Text, CreatedAt: time.Now().UTC(),
	})
	if err := e.persist(snap); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		stream.Fail("failed to save conversation state")
		return
	}

	outcome = "answer"
	stream.Answer(answer)
}

// persist writes the snapshot once. A write failure is fatal for the turn; it
// is never retried and never reported as success. The write runs on its own
// context so a cancelled turn still records whatever completed.
func (e *Engine) persist(snap Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.checkpoints.Save(ctx, snap); err != nil {
		telemetry.CheckpointFailures.Inc()
		e.logger.Printf("checkpoint save failed for thread %s: %v", snap.ThreadID, err)
		return err
	}
	return nil
}

// acquire takes the per-thread writer lock. With Redis configured the lock is
// cluster wide; otherwise it only covers this process.
func (e *Engine) acquire(ctx context.Context, threadID string) error {
	e.mu.Lock()
	if _, busy := e.locks[threadID]; busy {
		e.mu.Unlock()
		return ErrThreadBusy
	}
	e.locks[threadID] = struct{}{}
	e.mu.Unlock()

	if e.rdb != nil {
		ok, err := e.rdb.SetNX(ctx, lockKey(threadID), 1, e.cfg.TurnTimeout).Result()
		if err != nil {
			e.logger.Printf("redis lock for thread %s unavailable, proceeding with local lock: %v", threadID, err)
			return nil
		}
		if !ok {
			e.mu.Lock()
			delete(e.locks, threadID)
			e.mu.Unlock()
			return ErrThreadBusy
		}
	}
	return nil
}

func (e *Engine) release(threadID string) {
	e.mu.Lock()
	delete(e.locks, threadID)
	e.mu.Unlock()
	if e.rdb != nil {
		e.rdb.Del(context.Background(), lockKey(threadID))
	}
}

func lockKey(threadID string) string { return "hously:turnlock:" + threadID }
