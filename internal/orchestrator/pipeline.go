// Package orchestrator runs a project's task modules: it prepares the run
// environment, assembles the dependency graph, hands it to the executor and
// always tears the environment down again.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/maxkimambo/taskgraph/internal/connector"
	"github.com/maxkimambo/taskgraph/internal/dag"
	"github.com/maxkimambo/taskgraph/internal/events"
	"github.com/maxkimambo/taskgraph/internal/executor"
	"github.com/maxkimambo/taskgraph/internal/logger"
	"github.com/maxkimambo/taskgraph/internal/manifest"
	"github.com/maxkimambo/taskgraph/internal/project"
	"github.com/maxkimambo/taskgraph/internal/target"
	"github.com/maxkimambo/taskgraph/internal/taskmanager"
	"github.com/maxkimambo/taskgraph/internal/utils"
	"github.com/maxkimambo/taskgraph/task"
)

// PipelineOrchestrator owns the resources of a run.
type PipelineOrchestrator struct {
	project  *project.Project
	registry *task.Registry
	resolver *project.Resolver
	sinks    []events.Sink

	// Config is used for every Run. It starts from the project config and
	// may be changed before running.
	Config *executor.ExecutorConfig
}

// NewPipelineOrchestrator creates an orchestrator for p. A nil registry
// means task.Default.
func NewPipelineOrchestrator(p *project.Project, registry *task.Registry, sinks ...events.Sink) (*PipelineOrchestrator, error) {
	if registry == nil {
		registry = task.Default
	}
	config, err := ExecutorConfig(p.Config)
	if err != nil {
		return nil, err
	}
	return &PipelineOrchestrator{
		project:  p,
		registry: registry,
		resolver: project.NewResolver(),
		sinks:    sinks,
		Config:   config,
	}, nil
}

// ExecutorConfig maps project settings onto executor settings.
func ExecutorConfig(cfg *project.Config) (*executor.ExecutorConfig, error) {
	policy, err := target.ParsePolicy(cfg.TargetPolicy)
	if err != nil {
		return nil, err
	}
	config := executor.DefaultExecutorConfig()
	config.MaxParallelTasks = cfg.Concurrency
	config.FullTrace = cfg.FullTB
	config.TargetPolicy = policy
	config.TaskTimeout = time.Duration(cfg.TaskTimeout) * time.Second
	return config, nil
}

// Project returns the project the orchestrator runs.
func (o *PipelineOrchestrator) Project() *project.Project {
	return o.project
}

// Resolver returns the module resolver. Its search roots are only set
// while a run or an assembly is in progress.
func (o *PipelineOrchestrator) Resolver() *project.Resolver {
	return o.resolver
}

// Entries turns task selectors into entry modules. Without selectors every
// module of the project is an entry.
func (o *PipelineOrchestrator) Entries(selectors []string) ([]string, error) {
	known, err := o.project.DiscoverModules()
	if err != nil {
		return nil, err
	}
	if len(selectors) == 0 {
		return known, nil
	}
	return utils.SelectModules(known, selectors)
}

// Assemble builds the graph reachable from the selected modules by
// extracting their sources.
func (o *PipelineOrchestrator) Assemble(selectors []string) (*dag.DAG, *manifest.Manifest, error) {
	restore := o.resolver.Push(o.project.SearchRoots()...)
	defer restore()
	return o.assemble(selectors)
}

func (o *PipelineOrchestrator) assemble(selectors []string) (*dag.DAG, *manifest.Manifest, error) {
	entries, err := o.Entries(selectors)
	if err != nil {
		return nil, nil, err
	}

	graph, mf, err := dag.NewAssembler(dag.NewExtractingSource(o.resolver)).Assemble(entries)
	if err != nil {
		return nil, nil, err
	}

	logger.Op.WithFields(map[string]interface{}{
		"entries": len(entries),
		"modules": graph.Size(),
		"edges":   len(graph.Edges()),
	}).Debug("Dependency graph assembled")
	return graph, mf, nil
}

// AssembleCompiled builds the graph from the compiled manifest instead of
// the module sources. Without selectors every compiled module is an entry.
func (o *PipelineOrchestrator) AssembleCompiled(selectors []string) (*dag.DAG, error) {
	mf, err := manifest.Load(o.project.ManifestPath())
	if err != nil {
		return nil, err
	}

	known := make([]string, 0, mf.Len())
	for _, m := range mf.Modules() {
		known = append(known, m.Path)
	}
	entries := known
	if len(selectors) > 0 {
		if entries, err = utils.SelectModules(known, selectors); err != nil {
			return nil, err
		}
	}

	graph, _, err := dag.NewAssembler(mf).Assemble(entries)
	return graph, err
}

// Compile assembles the selected modules and writes their manifest.
func (o *PipelineOrchestrator) Compile(selectors []string) (*manifest.Manifest, error) {
	_, mf, err := o.Assemble(selectors)
	if err != nil {
		return nil, err
	}
	path := o.project.ManifestPath()
	if err := mf.Save(path); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	logger.User.Successf("Compiled %d modules to %s", mf.Len(), path)
	return mf, nil
}

// TargetWriter returns the writer bound to the project's output scope.
func (o *PipelineOrchestrator) TargetWriter() *target.Writer {
	cfg := o.project.Config
	return target.NewWriter(target.NewEvaluator(target.Scope{
		ProjectName: cfg.Name,
		ProjectDir:  o.project.Dir,
		OutputDir:   o.project.OutputPath(),
		Vars:        cfg.Vars,
	}))
}

// runEnv is what setup prepares and teardown releases.
type runEnv struct {
	conns   *connector.Set
	restore func()
}

// setup makes the project's modules resolvable and opens its connectors.
func (o *PipelineOrchestrator) setup(ctx context.Context) (*runEnv, error) {
	restore := o.resolver.Push(o.project.SearchRoots()...)

	conns, err := connector.Open(ctx, o.project.Connectors())
	if err != nil {
		restore()
		return nil, err
	}

	logger.Op.WithFields(map[string]interface{}{
		"project":    o.project.Config.Name,
		"roots":      o.resolver.Roots(),
		"connectors": conns.Names(),
	}).Debug("Run environment ready")
	return &runEnv{conns: conns, restore: restore}, nil
}

// teardown closes the run's connectors and restores the resolver.
func (o *PipelineOrchestrator) teardown(env *runEnv) {
	if err := env.conns.Close(); err != nil {
		logger.Op.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Warn("Failed to close connectors")
	}
	env.restore()
	logger.Op.Debug("Run environment released")
}

// Run assembles and executes the selected modules. Assembly errors stop the
// run before any task starts; task failures are reported in the result.
func (o *PipelineOrchestrator) Run(ctx context.Context, selectors []string) (*executor.ExecutionResult, error) {
	result, _, err := o.RunWithGraph(ctx, selectors)
	return result, err
}

// RunWithGraph is Run that also returns the executed graph.
func (o *PipelineOrchestrator) RunWithGraph(ctx context.Context, selectors []string) (*executor.ExecutionResult, *dag.DAG, error) {
	env, err := o.setup(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer o.teardown(env)

	graph, _, err := o.assemble(selectors)
	if err != nil {
		return nil, nil, err
	}

	logger.User.Infof("Running %d modules of %s", graph.Size(), o.project.Config.Name)

	exec := executor.NewExecutor(graph, o.Config, &executor.Environment{
		Registry: o.registry,
		Outputs:  taskmanager.NewSharedContext(),
		Hooks:    taskmanager.NewHooks(env.conns, o.project.Config.Vars),
		Targets:  o.TargetWriter(),
		Sinks:    o.sinks,
	})
	result, err := exec.Execute(ctx)
	return result, graph, err
}
