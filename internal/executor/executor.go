package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maxkimambo/taskgraph/internal/dag"
	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/internal/events"
	"github.com/maxkimambo/taskgraph/internal/logger"
	"github.com/maxkimambo/taskgraph/internal/manifest"
	"github.com/maxkimambo/taskgraph/internal/progress"
	"github.com/maxkimambo/taskgraph/internal/target"
	"github.com/maxkimambo/taskgraph/internal/taskmanager"
	"github.com/maxkimambo/taskgraph/task"
	"golang.org/x/sync/errgroup"
)

// ExecutorConfig contains configuration for the DAG executor
type ExecutorConfig struct {
	// MaxParallelTasks is the maximum number of tasks to run in parallel
	MaxParallelTasks int

	// TaskTimeout bounds a single attempt. Zero means no limit. Tasks see
	// the deadline through hooks.Context().
	TaskTimeout time.Duration

	// ProgressInterval is how often a progress summary is logged. Zero disables it.
	ProgressInterval time.Duration

	// FullTrace keeps the full diagnostic of syntax and generic errors
	FullTrace bool

	// TargetPolicy decides whether existing targets replace a run
	TargetPolicy target.Policy
}

// DefaultExecutorConfig returns a default configuration
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxParallelTasks: 1,
		ProgressInterval: 5 * time.Second,
		TargetPolicy:     target.PolicyAlways,
	}
}

// TargetStore materializes and reads back module targets.
type TargetStore interface {
	Write(m *manifest.Module, value any) error
	Exists(m *manifest.Module) (bool, error)
	Load(m *manifest.Module) (any, error)
	Verify(m *manifest.Module) error
}

// Environment is what tasks run against.
type Environment struct {
	Registry *task.Registry
	Outputs  *taskmanager.SharedContext
	Hooks    *taskmanager.Hooks
	// Targets may be nil, in which case declared targets are not written.
	Targets TargetStore
	Sinks   []events.Sink
}

// ExecutionResult contains the results of DAG execution
type ExecutionResult struct {
	RunID string

	// Success is true when every node succeeded
	Success bool

	// NodeResults maps node IDs to their execution results
	NodeResults map[string]*NodeResult

	// Order is the topological order nodes were numbered in
	Order []string

	// Events is the full lifecycle event stream of the run
	Events []events.Event

	// ExecutionTime is the total time taken for execution
	ExecutionTime time.Duration

	// Error is the first failure in topological order
	Error error
}

// Counts returns how many nodes succeeded, failed and were skipped.
func (r *ExecutionResult) Counts() (succeeded, failed, skipped int) {
	for _, nr := range r.NodeResults {
		switch {
		case nr.Outcome == events.OutcomeSuccess:
			succeeded++
		case nr.Outcome == events.OutcomeSkipped:
			skipped++
		case nr.Outcome.Failed():
			failed++
		}
	}
	return succeeded, failed, skipped
}

// NodeResult contains the result of a single node execution
type NodeResult struct {
	NodeID  string
	Outcome events.Outcome
	Success bool
	Error   error

	// Attempts holds one record per attempt. A skipped node holds its skip record.
	Attempts []*events.Execution

	StartTime *time.Time
	EndTime   *time.Time
	Duration  time.Duration

	// FromTargets is set when the output was loaded from existing targets
	FromTargets bool

	// SkippedBecause names the failed upstream node of a skipped node
	SkippedBecause string
}

// Final returns the record of the last attempt.
func (r *NodeResult) Final() *events.Execution {
	if len(r.Attempts) == 0 {
		return nil
	}
	return r.Attempts[len(r.Attempts)-1]
}

// Executor handles the execution of a DAG
type Executor struct {
	dag     *dag.DAG
	config  *ExecutorConfig
	env     *Environment
	runners map[string]task.Runner

	order []string
	index map[string]int

	log     *events.Log
	manager *events.Manager

	results map[string]*NodeResult
	running map[string]bool
	mutex   sync.RWMutex

	cancel    context.CancelFunc
	startTime time.Time
	finished  chan struct{}
}

// NewExecutor creates a new DAG executor
func NewExecutor(graph *dag.DAG, config *ExecutorConfig, env *Environment) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	if config.MaxParallelTasks < 1 {
		config.MaxParallelTasks = 1
	}
	if env == nil {
		env = &Environment{}
	}
	if env.Registry == nil {
		env.Registry = task.Default
	}
	if env.Outputs == nil {
		env.Outputs = taskmanager.NewSharedContext()
	}
	if env.Hooks == nil {
		env.Hooks = taskmanager.NewHooks(nil, nil)
	}

	return &Executor{
		dag:      graph,
		config:   config,
		env:      env,
		runners:  make(map[string]task.Runner),
		index:    make(map[string]int),
		results:  make(map[string]*NodeResult),
		running:  make(map[string]bool),
		finished: make(chan struct{}),
	}
}

// completion is what a worker hands back to the coordinator.
type completion struct {
	id     string
	result *NodeResult
}

// Execute runs the DAG to completion. Errors are returned only when the
// run cannot start; task failures are reported in the result.
func (e *Executor) Execute(ctx context.Context) (*ExecutionResult, error) {
	e.startTime = time.Now()
	runID := uuid.NewString()
	e.log = events.NewLog(runID, e.env.Sinks...)
	e.manager = events.NewManager(e.log, e.config.FullTrace)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mutex.Lock()
	e.cancel = cancel
	e.mutex.Unlock()

	order, err := e.dag.TopologicalSort()
	if err != nil {
		return e.buildResult(), fmt.Errorf("invalid DAG: %w", err)
	}
	e.order = order
	for i, id := range order {
		e.index[id] = i + 1
	}
	if err := e.bindRunners(); err != nil {
		return e.buildResult(), err
	}

	total := len(order)
	if total == 0 {
		return e.buildResult(), nil
	}

	logger.User.Infof("Starting run of %d tasks (max %d parallel)", total, e.config.MaxParallelTasks)
	logger.Op.WithFields(map[string]interface{}{
		"run_id":        runID,
		"tasks":         total,
		"parallel":      e.config.MaxParallelTasks,
		"target_policy": string(e.config.TargetPolicy),
		"roots":         e.dag.GetRootNodes(),
	}).Info("Run started")

	go e.logProgress()

	e.coordinate(ctx)
	close(e.finished)

	e.logFinalProgress()
	return e.buildResult(), nil
}

func (e *Executor) bindRunners() error {
	for _, id := range e.order {
		runner, ok := e.env.Registry.Lookup(id)
		if !ok {
			return tgerrors.NewTaskNotRegisteredError(id)
		}
		e.runners[id] = runner
	}
	return nil
}

// coordinate dispatches ready nodes to the worker pool until every node is
// terminal. Only the coordinator goroutine changes scheduling state.
func (e *Executor) coordinate(ctx context.Context) {
	total := len(e.order)
	limit := e.config.MaxParallelTasks

	remaining := make(map[string]int, total)
	var ready []string
	for _, id := range e.order {
		deps, _ := e.dag.GetDependencies(id)
		remaining[id] = len(deps)
		if len(deps) == 0 {
			ready = append(ready, id)
		}
	}

	var g errgroup.Group
	g.SetLimit(limit)
	done := make(chan completion, total)

	terminal := 0
	inFlight := 0
	cancelled := false

	for terminal < total {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
			ready = nil
			terminal += e.skipUndispatched("run cancelled")
		}

		for !cancelled && len(ready) > 0 && inFlight < limit {
			id := ready[0]
			ready = ready[1:]
			inFlight++
			e.markRunning(id)
			g.Go(func() error {
				done <- completion{id: id, result: e.runNode(ctx, id)}
				return nil
			})
		}

		if inFlight == 0 {
			// Nothing runs and nothing is ready: whatever is left can never start.
			terminal += e.skipUndispatched("dependencies never completed")
			break
		}

		var c completion
		if cancelled {
			c = <-done
		} else {
			select {
			case c = <-done:
			case <-ctx.Done():
				continue
			}
		}

		inFlight--
		terminal++
		e.complete(c)

		if c.result.Success {
			dependents, _ := e.dag.GetDependents(c.id)
			for _, d := range dependents {
				remaining[d]--
				if remaining[d] == 0 && !e.isTerminal(d) {
					ready = e.enqueue(ready, d)
				}
			}
			continue
		}

		skipped, _ := e.dag.GetTransitiveDependents(c.id)
		for _, d := range e.inOrder(skipped) {
			if e.isTerminal(d) {
				continue
			}
			e.skip(d, c.id, fmt.Sprintf("upstream %s failed", c.id))
			terminal++
		}
		ready = e.withoutTerminal(ready)
	}

	_ = g.Wait()
}

// enqueue inserts id keeping ready sorted by topological index.
func (e *Executor) enqueue(ready []string, id string) []string {
	i := sort.Search(len(ready), func(i int) bool { return e.index[ready[i]] > e.index[id] })
	ready = append(ready, "")
	copy(ready[i+1:], ready[i:])
	ready[i] = id
	return ready
}

func (e *Executor) inOrder(ids []string) []string {
	sorted := append([]string(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return e.index[sorted[i]] < e.index[sorted[j]] })
	return sorted
}

func (e *Executor) withoutTerminal(ids []string) []string {
	out := ids[:0]
	for _, id := range ids {
		if !e.isTerminal(id) {
			out = append(out, id)
		}
	}
	return out
}

// skipUndispatched records every node that neither ran nor is running as
// skipped and returns how many there were.
func (e *Executor) skipUndispatched(reason string) int {
	n := 0
	for _, id := range e.order {
		e.mutex.RLock()
		_, known := e.results[id]
		busy := e.running[id]
		e.mutex.RUnlock()
		if known || busy {
			continue
		}
		e.skip(id, "", reason)
		n++
	}
	return n
}

func (e *Executor) skip(id, because, reason string) {
	exec := e.manager.Skip(id, e.index[id], len(e.order), reason)
	logger.User.Skippedf("Skipped %s: %s", id, reason)

	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.results[id] = &NodeResult{
		NodeID:         id,
		Outcome:        events.OutcomeSkipped,
		Attempts:       []*events.Execution{exec},
		StartTime:      &exec.Start,
		EndTime:        &exec.End,
		SkippedBecause: because,
	}
}

func (e *Executor) markRunning(id string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.running[id] = true
}

func (e *Executor) complete(c completion) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	delete(e.running, c.id)
	e.results[c.id] = c.result
}

func (e *Executor) isTerminal(id string) bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	_, ok := e.results[id]
	return ok
}

// runNode executes every attempt of a node and publishes its output on
// success. It runs on a worker goroutine.
func (e *Executor) runNode(ctx context.Context, id string) *NodeResult {
	node, _ := e.dag.GetNode(id)
	module := node.Module
	if module == nil {
		module = &manifest.Module{Path: id}
	}
	idx, total := e.index[id], len(e.order)

	start := time.Now()
	result := &NodeResult{NodeID: id, StartTime: &start}

	if exec := e.fromTargets(ctx, id, module); exec != nil {
		result.Attempts = append(result.Attempts, exec)
		result.FromTargets = exec.FromTargets
		return e.finish(id, result, exec)
	}

	retries := module.Retries()
	delay := module.RetryDelay()
	deps, _ := e.dag.GetDependencies(id)
	runner := e.runners[id]

	var exec *events.Execution
	for attempt := 1; ; attempt++ {
		exec = e.manager.Manage(ctx, id, idx, total, attempt, func(ctx context.Context) (any, error) {
			return e.attempt(ctx, module, runner, deps)
		})
		result.Attempts = append(result.Attempts, exec)

		if exec.Outcome == events.OutcomeSuccess || attempt > retries || ctx.Err() != nil {
			break
		}

		e.manager.Retry(id, idx, total, attempt+1, delay)
		logger.User.Retryf("Retrying %s (attempt %d of %d)", id, attempt+1, retries+1)
		if !sleep(ctx, delay) {
			break
		}
	}

	return e.finish(id, result, exec)
}

// fromTargets loads the output of a module from its existing targets when
// the policy allows it. It returns nil when the task has to run.
func (e *Executor) fromTargets(ctx context.Context, id string, module *manifest.Module) *events.Execution {
	if e.config.TargetPolicy != target.PolicySkipExisting || e.env.Targets == nil || len(module.Targets) == 0 {
		return nil
	}
	exists, err := e.env.Targets.Exists(module)
	if err != nil || !exists {
		return nil
	}
	value, err := e.env.Targets.Load(module)
	if err != nil {
		logger.Op.WithFields(map[string]interface{}{
			"module": id,
			"error":  err.Error(),
		}).Warn("Existing targets could not be loaded, running task")
		return nil
	}

	exec := e.manager.Manage(ctx, id, e.index[id], len(e.order), 1, func(context.Context) (any, error) {
		return value, nil
	})
	exec.FromTargets = true
	return exec
}

// attempt is one invocation of the task followed by target materialization.
func (e *Executor) attempt(ctx context.Context, module *manifest.Module, runner task.Runner, deps []string) (any, error) {
	if e.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.TaskTimeout)
		defer cancel()
	}

	refs := e.env.Outputs.Refs(module.Path, deps)
	out, err := runner.Run(refs, e.env.Hooks.WithContext(ctx))
	if err != nil {
		if pe, ok := tgerrors.As(err); ok && pe.Module == "" {
			pe.WithModule(module.Path)
		}
		return nil, err
	}

	if e.env.Targets == nil || len(module.Targets) == 0 {
		return out, nil
	}
	if err := e.env.Targets.Write(module, out); err != nil {
		return nil, err
	}
	if e.config.TargetPolicy == target.PolicyVerify {
		if err := e.env.Targets.Verify(module); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// finish publishes a successful output and closes the node result. The
// output is visible before the coordinator releases any dependent.
func (e *Executor) finish(id string, result *NodeResult, exec *events.Execution) *NodeResult {
	if exec.Outcome == events.OutcomeSuccess {
		if err := e.env.Outputs.Publish(id, exec.Output); err != nil {
			exec.Outcome = events.OutcomeDomainError
			exec.Err = err
			exec.Diagnostic = err.Error()
		}
	}

	if exec.Outcome.Failed() && exec.Err != nil {
		logger.Op.WithFields(map[string]interface{}{
			"module":   id,
			"outcome":  string(exec.Outcome),
			"attempts": len(result.Attempts),
		}).Warn(tgerrors.DisplayErrorSummary(exec.Err))
	}

	end := time.Now()
	result.EndTime = &end
	result.Duration = end.Sub(*result.StartTime)
	result.Outcome = exec.Outcome
	result.Success = exec.Outcome == events.OutcomeSuccess
	result.Error = exec.Err
	return result
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Cancel cancels the DAG execution. Running tasks see it through their
// context; nodes not yet dispatched are skipped.
func (e *Executor) Cancel() {
	e.mutex.RLock()
	cancel := e.cancel
	e.mutex.RUnlock()

	if cancel != nil {
		cancel()
	}
}

// GetProgress returns the current execution progress
func (e *Executor) GetProgress() (completed, total int) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return len(e.results), len(e.order)
}

// buildResult constructs the final execution result
func (e *Executor) buildResult() *ExecutionResult {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	result := &ExecutionResult{
		NodeResults:   make(map[string]*NodeResult, len(e.results)),
		Order:         append([]string(nil), e.order...),
		ExecutionTime: time.Since(e.startTime),
		Success:       len(e.results) == len(e.order),
	}
	if e.log != nil {
		result.RunID = e.log.RunID()
		result.Events = e.log.Events()
	}

	for _, nodeID := range e.order {
		nodeResult, ok := e.results[nodeID]
		if !ok {
			continue
		}
		resultCopy := *nodeResult
		result.NodeResults[nodeID] = &resultCopy

		if nodeResult.Success {
			continue
		}
		result.Success = false
		if result.Error == nil && nodeResult.Error != nil {
			result.Error = fmt.Errorf("node %s failed: %w", nodeID, nodeResult.Error)
		}
	}

	return result
}

// logProgress provides periodic progress updates during execution
func (e *Executor) logProgress() {
	if e.config.ProgressInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.config.ProgressInterval)
	defer ticker.Stop()

	reporter := progress.NewReporter(e.config.ProgressInterval)
	for {
		select {
		case <-e.finished:
			return
		case <-ticker.C:
			logger.User.Info(reporter.Report(e.progressInfo()))
		}
	}
}

func (e *Executor) progressInfo() progress.ProgressInfo {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	info := progress.ProgressInfo{
		TotalTasks:  len(e.order),
		ElapsedTime: time.Since(e.startTime),
	}
	for _, id := range e.order {
		if e.running[id] {
			info.RunningTasks = append(info.RunningTasks, id)
			continue
		}
		r, ok := e.results[id]
		if !ok {
			continue
		}
		switch {
		case r.Success:
			info.CompletedTasks++
		case r.Outcome == events.OutcomeSkipped:
			info.SkippedTasks++
		default:
			info.FailedTasks++
		}
	}
	info.EstimatedTimeLeft = progress.CalculateETA(info.Done(), info.TotalTasks, info.ElapsedTime)
	return info
}

// logFinalProgress logs the final execution summary
func (e *Executor) logFinalProgress() {
	info := e.progressInfo()
	elapsed := progress.FormatDuration(info.ElapsedTime)

	if info.FailedTasks == 0 && info.SkippedTasks == 0 {
		logger.User.Successf("Run completed: %d/%d tasks successful in %s",
			info.CompletedTasks, info.TotalTasks, elapsed)
		return
	}
	logger.User.Errorf("Run completed: %d successful, %d failed, %d skipped in %s",
		info.CompletedTasks, info.FailedTasks, info.SkippedTasks, elapsed)
}
