package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maxkimambo/taskgraph/internal/dag"
	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/internal/events"
	"github.com/maxkimambo/taskgraph/internal/manifest"
	"github.com/maxkimambo/taskgraph/internal/target"
	"github.com/maxkimambo/taskgraph/internal/taskmanager"
	"github.com/maxkimambo/taskgraph/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNode struct {
	id      string
	deps    []string
	retries int
	targets []manifest.Target
	run     task.RunnerFunc
}

type fixture struct {
	graph    *dag.DAG
	registry *task.Registry
	outputs  *taskmanager.SharedContext
}

func newFixture(t *testing.T, nodes ...testNode) *fixture {
	t.Helper()
	f := &fixture{
		graph:    dag.NewDAG(),
		registry: task.NewRegistry(),
		outputs:  taskmanager.NewSharedContext(),
	}
	for _, n := range nodes {
		m := &manifest.Module{
			Path:    n.id,
			Refs:    n.deps,
			Targets: n.targets,
			Config:  map[string]any{},
		}
		if n.retries > 0 {
			m.Config[manifest.RetriesVar] = int64(n.retries)
		}
		require.NoError(t, f.graph.AddNode(&dag.Node{ID: n.id, Module: m}))
		require.NoError(t, f.registry.Register(n.id, n.run))
	}
	for _, n := range nodes {
		for _, d := range n.deps {
			require.NoError(t, f.graph.AddDependency(n.id, d))
		}
	}
	return f
}

func (f *fixture) executor(config *ExecutorConfig, store TargetStore) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	config.ProgressInterval = 0
	return NewExecutor(f.graph, config, &Environment{
		Registry: f.registry,
		Outputs:  f.outputs,
		Targets:  store,
	})
}

func returns(v any) task.RunnerFunc {
	return func(task.Tasks, task.Hooks) (any, error) { return v, nil }
}

func kinds(evs []events.Event) []events.Kind {
	out := make([]events.Kind, len(evs))
	for i, e := range evs {
		out[i] = e.Kind
	}
	return out
}

func TestDefaultExecutorConfig(t *testing.T) {
	config := DefaultExecutorConfig()

	assert.Equal(t, 1, config.MaxParallelTasks)
	assert.Zero(t, config.TaskTimeout)
	assert.Equal(t, 5*time.Second, config.ProgressInterval)
	assert.Equal(t, target.PolicyAlways, config.TargetPolicy)
}

func TestExecuteChainPublishesOutputs(t *testing.T) {
	f := newFixture(t,
		testNode{id: "extract.go", run: returns(1)},
		testNode{id: "transform.go", deps: []string{"extract.go"}, run: func(tasks task.Tasks, _ task.Hooks) (any, error) {
			v, err := tasks.Ref("extract.go")
			if err != nil {
				return nil, err
			}
			return v.(int) + 1, nil
		}},
		testNode{id: "load.go", deps: []string{"transform.go"}, run: func(tasks task.Tasks, _ task.Hooks) (any, error) {
			v, err := tasks.Ref("./transform")
			if err != nil {
				return nil, err
			}
			return v.(int) * 10, nil
		}},
	)

	result, err := f.executor(nil, nil).Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NoError(t, result.Error)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []string{"extract.go", "transform.go", "load.go"}, result.Order)

	out, ok := f.outputs.Get("load.go")
	require.True(t, ok)
	assert.Equal(t, 20, out)

	succeeded, failed, skipped := result.Counts()
	assert.Equal(t, 3, succeeded)
	assert.Zero(t, failed)
	assert.Zero(t, skipped)

	var started []string
	for _, e := range result.Events {
		assert.Equal(t, result.RunID, e.RunID)
		if e.Kind == events.KindRunning {
			started = append(started, e.Task)
			assert.Equal(t, 3, e.Total)
		}
	}
	assert.Equal(t, []string{"extract.go", "transform.go", "load.go"}, started)

	final := result.NodeResults["load.go"].Final()
	require.NotNil(t, final)
	assert.Equal(t, events.OutcomeSuccess, final.Outcome)
	assert.Equal(t, 20, final.Output)
}

func TestIndependentNodesOverlapWithConcurrency(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	both := make(chan struct{})
	go func() {
		arrived.Wait()
		close(both)
	}()

	var overlapped atomic.Int32
	barrier := func(task.Tasks, task.Hooks) (any, error) {
		arrived.Done()
		select {
		case <-both:
			overlapped.Add(1)
		case <-time.After(2 * time.Second):
		}
		return nil, nil
	}

	f := newFixture(t,
		testNode{id: "p.go", run: barrier},
		testNode{id: "q.go", run: barrier},
	)
	config := DefaultExecutorConfig()
	config.MaxParallelTasks = 2

	result, err := f.executor(config, nil).Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(2), overlapped.Load())
}

func TestConcurrencyOneNeverOverlaps(t *testing.T) {
	var current, peak atomic.Int32
	run := func(task.Tasks, task.Hooks) (any, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return nil, nil
	}

	f := newFixture(t,
		testNode{id: "a.go", run: run},
		testNode{id: "b.go", run: run},
		testNode{id: "c.go", run: run},
		testNode{id: "d.go", run: run},
	)

	result, err := f.executor(nil, nil).Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(1), peak.Load())

	for i := 1; i < len(result.Order); i++ {
		prev := result.NodeResults[result.Order[i-1]]
		next := result.NodeResults[result.Order[i]]
		assert.False(t, next.StartTime.Before(*prev.EndTime), "%s started before %s ended", next.NodeID, prev.NodeID)
	}
}

func TestFailedUpstreamSkipsDependents(t *testing.T) {
	var invoked atomic.Bool
	never := func(task.Tasks, task.Hooks) (any, error) {
		invoked.Store(true)
		return nil, nil
	}

	f := newFixture(t,
		testNode{id: "a.go", run: func(task.Tasks, task.Hooks) (any, error) {
			return nil, task.Errorf("source table is empty")
		}},
		testNode{id: "b.go", deps: []string{"a.go"}, run: never},
		testNode{id: "c.go", deps: []string{"b.go"}, run: never},
		testNode{id: "d.go", run: returns("independent")},
	)
	config := DefaultExecutorConfig()
	config.MaxParallelTasks = 2

	result, err := f.executor(config, nil).Execute(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.False(t, invoked.Load())

	a := result.NodeResults["a.go"]
	assert.Equal(t, events.OutcomeDomainError, a.Outcome)
	pe, ok := tgerrors.As(a.Error)
	require.True(t, ok)
	assert.Equal(t, "a.go", pe.Module)

	for _, id := range []string{"b.go", "c.go"} {
		r := result.NodeResults[id]
		assert.Equal(t, events.OutcomeSkipped, r.Outcome, id)
		assert.Equal(t, "a.go", r.SkippedBecause, id)
		require.Len(t, r.Attempts, 1)
		assert.Equal(t, events.OutcomeSkipped, r.Final().Outcome)
	}

	assert.Equal(t, events.OutcomeSuccess, result.NodeResults["d.go"].Outcome)
	_, ok = f.outputs.Get("d.go")
	assert.True(t, ok)

	succeeded, failed, skipped := result.Counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, skipped)
	assert.ErrorContains(t, result.Error, "node a.go failed")
}

func TestRetriesProduceOneRecordPerAttempt(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, testNode{id: "flaky.go", retries: 2, run: func(task.Tasks, task.Hooks) (any, error) {
		calls.Add(1)
		return nil, task.Errorf("warehouse unavailable")
	}})

	result, err := f.executor(nil, nil).Execute(context.Background())
	require.NoError(t, err)

	r := result.NodeResults["flaky.go"]
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, r.Attempts, 3)
	for i, exec := range r.Attempts {
		assert.Equal(t, i+1, exec.Attempt)
		assert.Equal(t, events.OutcomeDomainError, exec.Outcome)
	}
	assert.Equal(t, events.OutcomeDomainError, r.Outcome)

	retries := 0
	for _, e := range result.Events {
		if e.Kind == events.KindRetry {
			retries++
		}
	}
	assert.Equal(t, 2, retries)
}

func TestRetryRecovers(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, testNode{id: "flaky.go", retries: 3, run: func(task.Tasks, task.Hooks) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection reset")
		}
		return "ok", nil
	}})

	result, err := f.executor(nil, nil).Execute(context.Background())
	require.NoError(t, err)

	r := result.NodeResults["flaky.go"]
	assert.True(t, r.Success)
	require.Len(t, r.Attempts, 2)
	assert.Equal(t, events.OutcomeGenericError, r.Attempts[0].Outcome)
	assert.Equal(t, events.OutcomeSuccess, r.Attempts[1].Outcome)
}

func TestErrorEventSequence(t *testing.T) {
	f := newFixture(t, testNode{id: "broken.go", run: func(task.Tasks, task.Hooks) (any, error) {
		panic("index out of range")
	}})

	result, err := f.executor(nil, nil).Execute(context.Background())
	require.NoError(t, err)

	r := result.NodeResults["broken.go"]
	assert.Equal(t, events.OutcomeGenericError, r.Outcome)
	var pe *events.PanicError
	assert.ErrorAs(t, r.Error, &pe)

	var taskEvents []events.Event
	for _, e := range result.Events {
		if e.Task == "broken.go" {
			taskEvents = append(taskEvents, e)
		}
	}
	assert.Equal(t, []events.Kind{
		events.KindRunning,
		events.KindError,
		events.KindEmptyLine,
		events.KindDiagnostic,
	}, kinds(taskEvents))
}

func TestUnregisteredTask(t *testing.T) {
	f := newFixture(t, testNode{id: "a.go", run: returns(nil)})
	require.NoError(t, f.graph.AddNode(&dag.Node{ID: "ghost.go", Module: &manifest.Module{Path: "ghost.go"}}))

	result, err := f.executor(nil, nil).Execute(context.Background())
	require.Error(t, err)
	assert.True(t, tgerrors.IsCategory(err, tgerrors.ErrorCategoryConfiguration))
	assert.Empty(t, result.Events)
	assert.False(t, result.Success)
}

func TestCycleStopsBeforeAnyTask(t *testing.T) {
	var invoked atomic.Bool
	run := func(task.Tasks, task.Hooks) (any, error) {
		invoked.Store(true)
		return nil, nil
	}
	f := newFixture(t,
		testNode{id: "a.go", deps: []string{"b.go"}, run: run},
		testNode{id: "b.go", deps: []string{"a.go"}, run: run},
	)

	_, err := f.executor(nil, nil).Execute(context.Background())
	require.Error(t, err)
	assert.True(t, tgerrors.IsCategory(err, tgerrors.ErrorCategoryCycle))
	assert.False(t, invoked.Load())
}

type fakeStore struct {
	mu       sync.Mutex
	exists   bool
	stored   any
	written  map[string]any
	verifyOK bool
}

func (s *fakeStore) Write(m *manifest.Module, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written == nil {
		s.written = map[string]any{}
	}
	s.written[m.Path] = value
	return nil
}

func (s *fakeStore) Exists(*manifest.Module) (bool, error) { return s.exists, nil }

func (s *fakeStore) Load(*manifest.Module) (any, error) { return s.stored, nil }

func (s *fakeStore) Verify(m *manifest.Module) error {
	if s.verifyOK {
		return nil
	}
	return tgerrors.NewTargetError(tgerrors.CodeTargetMissing, "target missing", m.Path)
}

var reportTarget = []manifest.Target{{Type: "CSV", Loc: `"${output}/report.csv"`}}

func TestTargetsAreWrittenAfterSuccess(t *testing.T) {
	store := &fakeStore{}
	f := newFixture(t,
		testNode{id: "report.go", targets: reportTarget, run: returns([][]string{{"a"}})},
		testNode{id: "noop.go", run: returns("x")},
	)

	result, err := f.executor(nil, store).Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"report.go": [][]string{{"a"}}}, store.written)
}

func TestSkipExistingLoadsTargets(t *testing.T) {
	var invoked atomic.Bool
	store := &fakeStore{exists: true, stored: "cached rows"}
	f := newFixture(t,
		testNode{id: "report.go", targets: reportTarget, run: func(task.Tasks, task.Hooks) (any, error) {
			invoked.Store(true)
			return "fresh rows", nil
		}},
		testNode{id: "notify.go", deps: []string{"report.go"}, run: func(tasks task.Tasks, _ task.Hooks) (any, error) {
			return tasks.Ref("report.go")
		}},
	)
	config := DefaultExecutorConfig()
	config.TargetPolicy = target.PolicySkipExisting

	result, err := f.executor(config, store).Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, invoked.Load())

	r := result.NodeResults["report.go"]
	assert.True(t, r.FromTargets)
	assert.True(t, r.Final().FromTargets)

	out, _ := f.outputs.Get("notify.go")
	assert.Equal(t, "cached rows", out)
	assert.Empty(t, store.written)
}

func TestVerifyPolicyFailsMissingTargets(t *testing.T) {
	store := &fakeStore{}
	f := newFixture(t, testNode{id: "report.go", targets: reportTarget, run: returns("rows")})
	config := DefaultExecutorConfig()
	config.TargetPolicy = target.PolicyVerify

	result, err := f.executor(config, store).Execute(context.Background())
	require.NoError(t, err)

	r := result.NodeResults["report.go"]
	assert.Equal(t, events.OutcomeDomainError, r.Outcome)
	assert.True(t, tgerrors.IsCategory(r.Error, tgerrors.ErrorCategoryTarget))
	_, published := f.outputs.Get("report.go")
	assert.False(t, published)
}

func TestCancelledRunSkipsUndispatched(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t,
		testNode{id: "a.go", run: func(_ task.Tasks, hooks task.Hooks) (any, error) {
			cancel()
			<-hooks.Context().Done()
			return nil, hooks.Context().Err()
		}},
		testNode{id: "b.go", deps: []string{"a.go"}, run: returns(nil)},
		testNode{id: "c.go", run: returns(nil)},
	)

	result, err := f.executor(nil, nil).Execute(ctx)
	require.NoError(t, err)
	assert.False(t, result.Success)

	assert.Equal(t, events.OutcomeGenericError, result.NodeResults["a.go"].Outcome)
	assert.ErrorIs(t, result.NodeResults["a.go"].Error, context.Canceled)
	assert.Equal(t, events.OutcomeSkipped, result.NodeResults["b.go"].Outcome)
	assert.Equal(t, events.OutcomeSkipped, result.NodeResults["c.go"].Outcome)
	assert.Len(t, result.NodeResults, 3)
}

func TestTaskTimeoutIsCooperative(t *testing.T) {
	f := newFixture(t, testNode{id: "slow.go", run: func(_ task.Tasks, hooks task.Hooks) (any, error) {
		select {
		case <-hooks.Context().Done():
			return nil, hooks.Context().Err()
		case <-time.After(5 * time.Second):
			return "too late", nil
		}
	}})
	config := DefaultExecutorConfig()
	config.TaskTimeout = 20 * time.Millisecond

	result, err := f.executor(config, nil).Execute(context.Background())
	require.NoError(t, err)

	r := result.NodeResults["slow.go"]
	assert.Equal(t, events.OutcomeGenericError, r.Outcome)
	assert.ErrorIs(t, r.Error, context.DeadlineExceeded)
}

func TestEmptyGraph(t *testing.T) {
	f := newFixture(t)
	result, err := f.executor(nil, nil).Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.NodeResults)
}

func TestGetProgressAndCancel(t *testing.T) {
	f := newFixture(t, testNode{id: "a.go", run: returns(1)})
	e := f.executor(nil, nil)
	e.Cancel()

	_, err := e.Execute(context.Background())
	require.NoError(t, err)

	completed, total := e.GetProgress()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, total)
}
