package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/libsync/internal/models"
	"github.com/desertthunder/libsync/internal/services"
	"github.com/desertthunder/libsync/internal/shared"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// OpKind is the direction of a mutation.
type OpKind int

const (
	OpAdd OpKind = iota
	OpRemove
)

func (k OpKind) String() string {
	if k == OpRemove {
		return "remove"
	}
	return "add"
}

// MarshalText lets reports serialize as "add"/"remove".
func (k OpKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Operation is one mutation of a target collection.
type Operation struct {
	Kind         OpKind                `json:"op"`
	Collection   models.CollectionKind `json:"-"`
	CollectionID string                `json:"collection_id,omitempty"`
	TargetID     string                `json:"target_id"`
	// Position is the index for ordered inserts; -1 when order does not matter.
	Position int                   `json:"position"`
	Item     models.CollectionItem `json:"-"`
}

func (op Operation) String() string {
	return fmt.Sprintf("%s %s %s", op.Kind, op.Collection, op.TargetID)
}

// OperationResult records how one operation ended.
type OperationResult struct {
	Op       Operation        `json:"operation"`
	Outcome  services.Outcome `json:"-"`
	Attempts int              `json:"attempts"`
	Err      error            `json:"-"`
}

// Succeeded reports whether the operation was applied.
func (r OperationResult) Succeeded() bool { return r.Outcome == services.Success }

// ExecutionReport lists one result per operation.
type ExecutionReport struct {
	Results []OperationResult `json:"results"`
}

// Counts returns the number of applied additions, applied removals and failed operations.
func (r *ExecutionReport) Counts() (added, removed, failed int) {
	if r == nil {
		return 0, 0, 0
	}
	for _, res := range r.Results {
		switch {
		case !res.Succeeded():
			failed++
		case res.Op.Kind == OpAdd:
			added++
		default:
			removed++
		}
	}
	return added, removed, failed
}

// Failures returns the results that did not succeed.
func (r *ExecutionReport) Failures() []OperationResult {
	if r == nil {
		return nil
	}
	var out []OperationResult
	for _, res := range r.Results {
		if !res.Succeeded() {
			out = append(out, res)
		}
	}
	return out
}

// Limits bounds how hard the executor drives the target catalog.
type Limits struct {
	MaxConcurrent     int
	MaxAttempts       int
	BackoffBase       time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64 // 0 disables pacing
}

// LimitsFromConfig converts the [sync] section into executor limits.
func LimitsFromConfig(cfg shared.SyncConfig) Limits {
	return Limits{
		MaxConcurrent:     cfg.MaxConcurrentCalls,
		MaxAttempts:       cfg.MaxRetryAttempts,
		BackoffBase:       time.Duration(cfg.BackoffBaseMs) * time.Millisecond,
		MaxBackoff:        time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
}

// backoffCeiling bounds the delay when no maximum is configured.
const backoffCeiling = time.Hour

// Backoff returns the delay before retry number attempt (1-based): base * 2^(attempt-1), capped at MaxBackoff,
// or at an hour when MaxBackoff is unset.
func (l Limits) Backoff(attempt int) time.Duration {
	if attempt < 1 || l.BackoffBase <= 0 {
		return 0
	}
	limit := l.MaxBackoff
	if limit <= 0 {
		limit = backoffCeiling
	}
	d := l.BackoffBase
	for i := 1; i < attempt && d < limit; i++ {
		if d > limit/2 {
			d = limit
			break
		}
		d *= 2
	}
	return min(d, limit)
}

// Executor applies operations against a [services.TargetMutator] under a concurrency ceiling and a request rate,
// retrying transient failures.
type Executor struct {
	mutator services.TargetMutator
	limits  Limits
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	logger  *log.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor. Limits below one are raised to one.
func NewExecutor(mutator services.TargetMutator, limits Limits, logger *log.Logger) *Executor {
	limits.MaxConcurrent = max(limits.MaxConcurrent, 1)
	limits.MaxAttempts = max(limits.MaxAttempts, 1)
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	limit := rate.Inf
	if limits.RequestsPerSecond > 0 {
		limit = rate.Limit(limits.RequestsPerSecond)
	}

	return &Executor{
		mutator: mutator,
		limits:  limits,
		sem:     semaphore.NewWeighted(int64(limits.MaxConcurrent)),
		limiter: rate.NewLimiter(limit, limits.MaxConcurrent),
		logger:  logger.WithPrefix("executor"),
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Call runs fn under the ceiling, retrying transient outcomes with exponential backoff.
//
// A Retry-After hint from the catalog replaces a shorter backoff. Attempts is zero when the context ended before
// the first attempt started.
func (e *Executor) Call(ctx context.Context, desc string, fn func(ctx context.Context) services.OpResult) (services.OpResult, int) {
	var last services.OpResult
	for attempt := 1; attempt <= e.limits.MaxAttempts; attempt++ {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return interrupted(last, err), attempt - 1
		}
		if err := e.limiter.Wait(ctx); err != nil {
			e.sem.Release(1)
			return interrupted(last, err), attempt - 1
		}
		last = fn(ctx)
		e.sem.Release(1)

		if last.Outcome != services.Transient {
			return last, attempt
		}
		if attempt == e.limits.MaxAttempts {
			e.logger.Warn("giving up after transient failures", "op", desc, "attempts", attempt, "err", last.Err)
			return last, attempt
		}

		delay := e.limits.Backoff(attempt)
		if hint := services.RetryAfterHint(last.Err); hint > delay {
			delay = hint
			if e.limits.MaxBackoff > 0 {
				delay = min(delay, e.limits.MaxBackoff)
			}
		}
		e.logger.Debug("retrying", "op", desc, "attempt", attempt, "delay", delay, "err", last.Err)
		if err := e.sleep(ctx, delay); err != nil {
			return interrupted(last, err), attempt
		}
	}
	return last, e.limits.MaxAttempts
}

// interrupted records a stop caused by the context. The last catalog error, if any, is kept in the chain.
func interrupted(last services.OpResult, ctxErr error) services.OpResult {
	err := ctxErr
	if last.Err != nil {
		err = errors.Join(ctxErr, last.Err)
	}
	return services.OpResult{Outcome: services.Permanent, Err: err}
}

func (e *Executor) apply(ctx context.Context, op Operation) OperationResult {
	res, attempts := e.Call(ctx, op.String(), func(ctx context.Context) services.OpResult {
		if op.Kind == OpRemove {
			return e.mutator.Remove(ctx, op.Collection, op.CollectionID, op.Item)
		}
		return e.mutator.Add(ctx, op.Collection, op.CollectionID, op.TargetID, op.Position)
	})
	if res.Outcome != services.Success {
		e.logger.Warn("operation failed", "op", op.String(), "outcome", res.Outcome, "attempts", attempts, "err", res.Err)
	}
	return OperationResult{Op: op, Outcome: res.Outcome, Attempts: attempts, Err: res.Err}
}

// Execute applies independent operations concurrently. Results keep the order of ops.
//
// A failed operation never stops the others. Operations that had not started when ctx ended are recorded with the
// context's error.
func (e *Executor) Execute(ctx context.Context, ops []Operation) *ExecutionReport {
	report := &ExecutionReport{Results: make([]OperationResult, len(ops))}

	var wg sync.WaitGroup
	for i, op := range ops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report.Results[i] = e.apply(ctx, op)
		}()
	}
	wg.Wait()
	return report
}

// slot is one entry of the live playlist model used by [Executor.ExecuteScript].
type slot struct {
	orig  int // index in the current list, -1 for inserted entries
	final int // index in script.Target, -1 for an entry scheduled for deletion
}

// ExecuteScript applies an ordered edit script one step at a time: deletions by descending index, then insertions
// by ascending position.
//
// Insert positions are computed against a local model of the live list, so a failed step shifts nothing that
// follows it.
func (e *Executor) ExecuteScript(ctx context.Context, kind models.CollectionKind, collectionID string, current []models.CollectionItem, script *models.EditScript) *ExecutionReport {
	report := &ExecutionReport{}
	if script == nil {
		return report
	}

	deleted := make(map[int]bool, len(script.Deletions))
	for _, d := range script.Deletions {
		deleted[d.Index] = true
	}
	inserted := make(map[int]bool, len(script.Insertions))
	for _, ins := range script.Insertions {
		inserted[ins.Position] = true
	}

	// Kept current entries fill the non-inserted target positions in order.
	live := make([]slot, 0, len(script.Target))
	next := 0
	for i := range current {
		s := slot{orig: i, final: -1}
		if !deleted[i] {
			for inserted[next] {
				next++
			}
			s.final = next
			next++
		}
		live = append(live, s)
	}

	deletions := append([]models.Deletion(nil), script.Deletions...)
	sort.Slice(deletions, func(a, b int) bool { return deletions[a].Index > deletions[b].Index })
	for _, d := range deletions {
		op := Operation{
			Kind: OpRemove, Collection: kind, CollectionID: collectionID,
			TargetID: d.TargetID, Position: d.Index, Item: current[d.Index],
		}
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, OperationResult{Op: op, Outcome: services.Permanent, Err: err})
			continue
		}
		res := e.apply(ctx, op)
		report.Results = append(report.Results, res)
		if res.Succeeded() {
			for k := range live {
				if live[k].orig == d.Index {
					live = append(live[:k], live[k+1:]...)
					break
				}
			}
		}
	}

	insertions := append([]models.Insertion(nil), script.Insertions...)
	sort.SliceStable(insertions, func(a, b int) bool { return insertions[a].Position < insertions[b].Position })
	for _, ins := range insertions {
		at := 0
		for k, s := range live {
			if s.final >= 0 && s.final < ins.Position {
				at = k + 1
			}
		}
		op := Operation{Kind: OpAdd, Collection: kind, CollectionID: collectionID, TargetID: ins.TargetID, Position: at}
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, OperationResult{Op: op, Outcome: services.Permanent, Err: err})
			continue
		}
		res := e.apply(ctx, op)
		report.Results = append(report.Results, res)
		if res.Succeeded() {
			s := slot{orig: -1, final: ins.Position}
			live = append(live, slot{})
			copy(live[at+1:], live[at:])
			live[at] = s
		}
	}
	return report
}
