// Package gasm evolves programs for a small accumulator machine by genetic
// programming.
package gasm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gasm/internal/evo"
	"gasm/internal/metrics"
	"gasm/internal/model"
	"gasm/internal/stats"
	"gasm/internal/storage"
	"gasm/internal/vm"
)

type (
	Config          = model.Config
	Dataset         = model.Dataset
	GenerationEntry = model.GenerationEntry
	RunInfo         = model.RunInfo
	Individual      = evo.Individual
	Instruction     = vm.Instruction
	Program         = vm.Program
	ExecutionResult = vm.ExecutionResult
)

var (
	ErrConfiguration = model.ErrConfiguration
	ErrShape         = model.ErrShape
	ErrInvariant     = model.ErrInvariant
	ErrSnapshotIO    = model.ErrSnapshotIO
)

func DefaultConfig() Config { return model.DefaultConfig() }

// Assemble parses disassembly text, one instruction per line.
func Assemble(text string) (Program, error) { return vm.Assemble(text) }

type Options struct {
	Logger *slog.Logger
	// Registerer receives the run metrics. Nil disables them.
	Registerer prometheus.Registerer
	// StoreKind selects a run store ("memory", "badger", "sqlite"). Empty
	// disables the store.
	StoreKind string
	StorePath string
	// CheckpointFormat is "json" (default) or "cbor".
	CheckpointFormat string
	// OnGeneration is called after each recorded generation. It must not
	// call back into the Engine.
	OnGeneration func(GenerationEntry)
}

// Engine owns a configuration and the population evolved under it. Methods
// are safe for concurrent use; Evolve excludes every other call.
type Engine struct {
	mu      sync.RWMutex
	cfg     Config
	state   evo.State
	opts    Options
	store   storage.Store
	metrics *metrics.Collectors
}

func New(cfg Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	switch storage.Format(opts.CheckpointFormat) {
	case "", storage.FormatJSON, storage.FormatCBOR:
	default:
		return nil, fmt.Errorf("%w: unknown checkpoint format %q", ErrConfiguration, opts.CheckpointFormat)
	}

	e := &Engine{cfg: cfg, opts: opts}
	if opts.Registerer != nil {
		e.metrics = metrics.New(opts.Registerer)
	}
	if opts.StoreKind != "" {
		store, err := storage.NewStore(opts.StoreKind, opts.StorePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		if err := store.Init(context.Background()); err != nil {
			return nil, err
		}
		e.store = store
	}
	return e, nil
}

// Load restores an engine from a snapshot file written by Save or by a
// periodic checkpoint.
func Load(path string, opts Options) (*Engine, error) {
	snap, err := storage.LoadSnapshotFile(path)
	if err != nil {
		return nil, err
	}
	return fromSnapshot(snap, opts)
}

// LoadRun restores the latest snapshot of runID from the configured store.
func LoadRun(ctx context.Context, runID string, opts Options) (*Engine, error) {
	if opts.StoreKind == "" {
		return nil, fmt.Errorf("%w: a store is required to load run %s", ErrConfiguration, runID)
	}
	snap, err := readRun(ctx, runID, opts.StoreKind, opts.StorePath)
	if err != nil {
		return nil, err
	}
	return fromSnapshot(snap, opts)
}

// readRun closes its store before returning so the engine can reopen it.
func readRun(ctx context.Context, runID, kind, path string) (model.Snapshot, error) {
	store, err := storage.NewStore(kind, path)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	defer storage.CloseIfSupported(store)
	if err := store.Init(ctx); err != nil {
		return model.Snapshot{}, err
	}
	snap, ok, err := store.GetSnapshot(ctx, runID)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %w", ErrSnapshotIO, err)
	}
	if !ok {
		return model.Snapshot{}, fmt.Errorf("%w: run not found: %s", ErrSnapshotIO, runID)
	}
	return snap, nil
}

func fromSnapshot(snap model.Snapshot, opts Options) (*Engine, error) {
	state, err := evo.StateFromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	e, err := New(snap.Config, opts)
	if err != nil {
		return nil, err
	}
	e.state = state
	return e, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store == nil {
		return nil
	}
	err := storage.CloseIfSupported(e.store)
	e.store = nil
	return err
}

func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Configure replaces the configuration used by later calls. The population
// is kept, so a changed PopulationSize makes the next Evolve fail.
func (e *Engine) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	return nil
}

// Evolve runs generations against data until the generation budget is spent
// or the goal is reached. Cancelling ctx stops at the next generation
// boundary; the engine keeps every completed generation.
func (e *Engine) Evolve(ctx context.Context, data Dataset) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	opts := evo.Options{
		Logger:       e.opts.Logger,
		Metrics:      e.metrics,
		OnGeneration: e.opts.OnGeneration,
	}
	if e.cfg.CheckpointInterval > 0 {
		opts.Checkpointer = storage.FileCheckpointer{
			Dir:    e.cfg.OutputFolder,
			Format: storage.Format(e.opts.CheckpointFormat),
			Store:  e.store,
		}
	}

	state, err := evo.Evolve(ctx, e.cfg, data, e.state, opts)
	if err != nil && !adoptable(err) {
		return err
	}
	e.state = state

	if e.store != nil && len(state.History) > 0 {
		snap := state.Snapshot(e.cfg)
		if serr := e.store.SaveSnapshot(context.WithoutCancel(ctx), snap); serr != nil && err == nil {
			err = fmt.Errorf("%w: store run %s: %w", ErrSnapshotIO, state.RunID, serr)
		}
	}
	return err
}

// adoptable reports whether a failed run still produced state worth keeping.
func adoptable(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrSnapshotIO)
}

// Save writes the resumable state to path. A ".cbor" extension selects the
// binary encoding.
func (e *Engine) Save(path string) error {
	e.mu.RLock()
	snap := e.state.Snapshot(e.cfg)
	e.mu.RUnlock()
	return storage.SaveSnapshotFile(path, snap)
}

// WriteArtifacts exports the config, history and best program under
// dir/<run id> and records the run in dir's index.
func (e *Engine) WriteArtifacts(dir string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.state.History) == 0 {
		return "", fmt.Errorf("%w: nothing evolved yet", ErrInvariant)
	}
	last := e.state.History[len(e.state.History)-1]
	runDir, err := stats.WriteRunArtifacts(dir, stats.RunArtifacts{
		RunID:   e.state.RunID,
		Config:  e.cfg,
		History: e.state.History,
		Best:    last.Best,
	})
	if err != nil {
		return "", err
	}
	err = stats.AppendRunIndex(dir, stats.RunIndexEntry{
		RunID:            e.state.RunID,
		PopulationSize:   e.cfg.PopulationSize,
		Generations:      last.Generation,
		Seed:             e.cfg.Seed,
		Workers:          e.cfg.Workers,
		EliteCount:       e.cfg.EliteCount,
		Selection:        e.cfg.Selection.String(),
		Fitness:          string(e.cfg.Fitness.Kind),
		FinalBestFitness: last.BestFitness,
		CreatedAtUTC:     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	return runDir, nil
}

// Runs lists the runs held by the engine's store, newest first.
func (e *Engine) Runs(ctx context.Context) ([]RunInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.store == nil {
		return nil, nil
	}
	return e.store.ListRuns(ctx)
}

func (e *Engine) RunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.RunID
}

// Generation is the number of the last recorded generation.
func (e *Engine) Generation() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Generation
}

func (e *Engine) machine() (*vm.Machine, error) {
	m, err := vm.NewMachine(e.cfg.RegisterLength, e.cfg.MaxProcessTime, e.cfg.UseCompile)
	if err != nil {
		return nil, err
	}
	m.Workers = e.cfg.Workers
	return m, nil
}

func (e *Engine) individual(index int) (Individual, error) {
	if index < 0 || index >= len(e.state.Population) {
		return Individual{}, fmt.Errorf("%w: individual %d out of range (population %d)", ErrInvariant, index, len(e.state.Population))
	}
	return e.state.Population[index], nil
}

// Run executes individual index once against input.
func (e *Engine) Run(index int, input []float64) (ExecutionResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ind, err := e.individual(index)
	if err != nil {
		return ExecutionResult{}, err
	}
	m, err := e.machine()
	if err != nil {
		return ExecutionResult{}, err
	}
	return m.Run(ind.Program, input)
}

// RunAll executes individual index against every row of batch in isolation.
func (e *Engine) RunAll(ctx context.Context, index int, batch [][]float64) ([]ExecutionResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ind, err := e.individual(index)
	if err != nil {
		return nil, err
	}
	m, err := e.machine()
	if err != nil {
		return nil, err
	}
	return m.RunAll(ctx, ind.Program, batch)
}

// SetProgram replaces the program of individual index. Its fitness is
// cleared and recomputed by the next Evolve.
func (e *Engine) SetProgram(index int, prog Program) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.individual(index); err != nil {
		return err
	}
	if err := prog.Validate(e.cfg.IndividualMaxSize); err != nil {
		return err
	}
	e.state.Population[index] = evo.NewIndividual(prog.Clone())
	return nil
}

// SetProgramText is SetProgram for disassembly text.
func (e *Engine) SetProgramText(index int, text string) error {
	prog, err := vm.Assemble(text)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return e.SetProgram(index, prog)
}

// Best returns the best evaluated individual. ok is false when nothing has
// been scored.
func (e *Engine) Best() (Individual, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i := e.bestIndex()
	if i < 0 {
		return Individual{}, false
	}
	return e.state.Population[i].Clone(), true
}

// BestIndex is the population index of Best, or -1.
func (e *Engine) BestIndex() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bestIndex()
}

func (e *Engine) bestIndex() int {
	best := -1
	for i, ind := range e.state.Population {
		if !ind.Evaluated() {
			continue
		}
		if best < 0 || evo.Better(*ind.Fitness, *e.state.Population[best].Fitness, e.cfg.Minimize) {
			best = i
		}
	}
	return best
}

// Population returns a deep copy of the current population.
func (e *Engine) Population() []Individual {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Individual, len(e.state.Population))
	for i, ind := range e.state.Population {
		out[i] = ind.Clone()
	}
	return out
}

func (e *Engine) History() []GenerationEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.state.History)
}

// HistoryIter yields the history as of the call, indexed from 0.
func (e *Engine) HistoryIter() iter.Seq2[int, GenerationEntry] {
	return slices.All(e.History())
}
