package evo

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gasm/internal/metrics"
	"gasm/internal/model"
	"gasm/internal/numgen"
	"gasm/internal/stats"
)

// Options carries the collaborators of a run. All fields are optional.
type Options struct {
	Logger       *slog.Logger
	Metrics      *metrics.Collectors
	Checkpointer Checkpointer
	OnGeneration func(model.GenerationEntry)
}

// PopulationMonitor drives generations for one configuration and dataset.
type PopulationMonitor struct {
	cfg       model.Config
	data      model.Dataset
	digest    uint64
	scoring   uint64
	opts      Options
	evaluator *Evaluator
	grower    Grower
	mutator   Mutator
	crossover Crossover
	selector  Selector

	rng  *numgen.Stream
	lits Literals
}

// Evolve continues state under cfg against data and returns the new state.
// On failure the returned state holds the last completed generation.
func Evolve(ctx context.Context, cfg model.Config, data model.Dataset, state State, opts Options) (State, error) {
	m, err := NewPopulationMonitor(cfg, data, opts)
	if err != nil {
		return state, err
	}
	return m.Run(ctx, state)
}

func NewPopulationMonitor(cfg model.Config, data model.Dataset, opts Options) (*PopulationMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := data.Validate(cfg.RegisterLength); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	evaluator, err := NewEvaluator(cfg)
	if err != nil {
		return nil, err
	}
	grower, err := NewGrower(cfg.Grow)
	if err != nil {
		return nil, err
	}
	mutator, err := NewMutator(cfg.Mutation, grower)
	if err != nil {
		return nil, err
	}
	crossover, err := NewCrossover(cfg.Crossover)
	if err != nil {
		return nil, err
	}
	selector, err := NewSelector(cfg.Selection)
	if err != nil {
		return nil, err
	}

	return &PopulationMonitor{
		cfg:       cfg,
		data:      data,
		digest:    data.Digest(),
		scoring:   cfg.ScoringDigest(),
		opts:      opts,
		evaluator: evaluator,
		grower:    grower,
		mutator:   mutator,
		crossover: crossover,
		selector:  selector,
	}, nil
}

// Run evolves state. The input state is not modified.
func (m *PopulationMonitor) Run(ctx context.Context, state State) (State, error) {
	if err := m.checkState(state); err != nil {
		return state, err
	}
	if err := m.restoreRandom(state); err != nil {
		return state, err
	}

	work := state.Clone()
	if work.RunID == "" {
		work.RunID = uuid.NewString()
	}
	if work.DatasetDigest != m.digest || work.ScoringDigest != m.scoring {
		for i := range work.Population {
			work.Population[i].Fitness = nil
		}
		work.DatasetDigest = m.digest
		work.ScoringDigest = m.scoring
	}

	var writer *asyncCheckpointer
	if m.opts.Checkpointer != nil && m.cfg.CheckpointInterval > 0 {
		writer = newAsyncCheckpointer(ctx, m.opts.Checkpointer, m.opts.Logger, m.opts.Metrics)
	}

	err := m.run(ctx, &work, writer)
	if writer != nil {
		if werr := writer.wait(); err == nil {
			err = werr
		}
	}
	m.saveRandom(&work)
	return work, err
}

func (m *PopulationMonitor) run(ctx context.Context, work *State, writer *asyncCheckpointer) error {
	if len(work.History) == 0 {
		started := time.Now()
		if len(work.Population) == 0 {
			work.Population = m.initialPopulation()
		}
		if err := m.evaluatePopulation(ctx, work.Population); err != nil {
			return err
		}
		work.Generation = 0
		if err := m.record(work, started); err != nil {
			return err
		}
		m.checkpoint(work, writer)
	} else {
		if err := m.evaluatePopulation(ctx, work.Population); err != nil {
			return err
		}
		work.Generation = work.History[len(work.History)-1].Generation
	}

	for bred := 0; bred < m.cfg.MaxGenerations; bred++ {
		if m.goalReached(work) {
			m.opts.Logger.Info("goal reached", "run_id", work.RunID, "generation", work.Generation)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		started := time.Now()
		next, err := m.nextGeneration(work.Population)
		if err != nil {
			return err
		}
		if err := m.evaluatePopulation(ctx, next); err != nil {
			return err
		}
		work.Population = next
		work.Generation++
		if err := m.record(work, started); err != nil {
			return err
		}
		m.checkpoint(work, writer)
	}
	return nil
}

// checkState rejects states that cannot belong to this configuration.
func (m *PopulationMonitor) checkState(state State) error {
	n := len(state.Population)
	if n == 0 {
		if len(state.History) > 0 {
			return fmt.Errorf("%w: history without population", model.ErrInvariant)
		}
		return nil
	}
	if n != m.cfg.PopulationSize {
		return fmt.Errorf("%w: population mismatch: got=%d want=%d", model.ErrInvariant, n, m.cfg.PopulationSize)
	}
	for i, ind := range state.Population {
		if err := ind.Program.Validate(m.cfg.IndividualMaxSize); err != nil {
			return fmt.Errorf("individual %d: %w", i, err)
		}
	}
	return nil
}

func (m *PopulationMonitor) restoreRandom(state State) error {
	if len(state.Random) > 0 {
		stream, err := numgen.RestoreStream(state.Random)
		if err != nil {
			return fmt.Errorf("%w: %w", model.ErrSnapshotIO, err)
		}
		m.rng = stream
	} else {
		m.rng = numgen.NewStream(m.cfg.Seed)
	}

	cng, err := numgen.Restore(m.cfg.CNG, state.CNG)
	if err != nil {
		return err
	}
	rng, err := numgen.Restore(m.cfg.RNG, state.RNG)
	if err != nil {
		return err
	}
	m.lits = Literals{CNG: cng, RNG: rng}
	return nil
}

func (m *PopulationMonitor) saveRandom(work *State) {
	if data, err := m.rng.MarshalBinary(); err == nil {
		work.Random = data
	}
	work.CNG = m.lits.CNG.State()
	work.RNG = m.lits.RNG.State()
}

func (m *PopulationMonitor) initialPopulation() []Individual {
	pop := make([]Individual, m.cfg.PopulationSize)
	for i := range pop {
		pop[i] = NewIndividual(m.grower.Grow(m.rng.Rand, m.lits, m.cfg.IndividualMaxSize))
	}
	return pop
}

// nextGeneration keeps the elites and breeds the rest. It runs on the
// caller's goroutine so the draw order never depends on worker count.
func (m *PopulationMonitor) nextGeneration(pop []Individual) ([]Individual, error) {
	ranked, err := Rank(pop, m.cfg.Minimize)
	if err != nil {
		return nil, err
	}
	pick, err := m.selector.Prepare(ranked, m.cfg.Minimize)
	if err != nil {
		return nil, err
	}

	next := make([]Individual, 0, m.cfg.PopulationSize)
	for i := 0; i < m.cfg.EliteCount; i++ {
		next = append(next, pop[ranked[i].Index].Clone())
	}
	for len(next) < m.cfg.PopulationSize {
		next = append(next, m.offspring(pop, pick))
	}
	return next, nil
}

func (m *PopulationMonitor) offspring(pop []Individual, pick Picker) Individual {
	rng := m.rng.Rand
	maxSize := m.cfg.IndividualMaxSize

	parent := pop[pick(rng)]
	prog := parent.Program
	crossed := false
	if rng.Float64() < m.cfg.CrossoverProbability {
		mate := pop[pick(rng)]
		prog = m.crossover.Cross(rng, prog, mate.Program, maxSize)
		crossed = true
	}
	prog = m.mutator.Mutate(rng, m.lits, prog, m.cfg.MutationProbability, maxSize)

	if !crossed && slices.Equal(prog, parent.Program) {
		return parent.Clone()
	}
	return NewIndividual(prog)
}

// evaluatePopulation scores every unevaluated individual in place.
// Cancellation of ctx does not interrupt a generation already in progress.
func (m *PopulationMonitor) evaluatePopulation(ctx context.Context, pop []Individual) error {
	workers := m.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(workers)
	evaluated := 0
	for i := range pop {
		if pop[i].Evaluated() {
			continue
		}
		evaluated++
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fitness, steps, err := m.evaluator.Evaluate(pop[i].Program, m.data)
			if err != nil {
				return fmt.Errorf("evaluate individual %d: %w", i, err)
			}
			pop[i] = pop[i].withFitness(fitness, steps)
			return nil
		})
	}
	err := g.Wait()
	m.opts.Metrics.ObserveEvaluations(evaluated)
	return err
}

func (m *PopulationMonitor) record(work *State, started time.Time) error {
	ranked, err := Rank(work.Population, m.cfg.Minimize)
	if err != nil {
		return err
	}
	best := work.Population[ranked[0].Index]

	fitness := make([]float64, len(work.Population))
	sizes := make([]int, len(work.Population))
	for i, ind := range work.Population {
		fitness[i] = *ind.Fitness
		sizes[i] = ind.Size()
	}
	summary := stats.Summarize(fitness, sizes)

	entry := model.GenerationEntry{
		Generation:  work.Generation,
		BestFitness: model.Float(*best.Fitness),
		AvgFitness:  model.Float(summary.AvgFitness),
		AvgSize:     summary.AvgSize,
		Best:        best.Record(),
	}
	work.History = append(work.History, entry)

	elapsed := time.Since(started)
	m.opts.Logger.Info("generation",
		"run_id", work.RunID,
		"generation", entry.Generation,
		"best_fitness", *best.Fitness,
		"avg_fitness", summary.AvgFitness,
		"avg_size", summary.AvgSize,
		"best_size", best.Size(),
		"elapsed", elapsed,
	)
	m.opts.Metrics.ObserveGeneration(*best.Fitness, summary.AvgFitness, summary.AvgSize, elapsed)
	if m.opts.OnGeneration != nil {
		m.opts.OnGeneration(entry)
	}
	return nil
}

func (m *PopulationMonitor) goalReached(work *State) bool {
	if len(work.History) == 0 {
		return false
	}
	best := float64(work.History[len(work.History)-1].BestFitness)
	return GoalReached(best, m.cfg.GoalFitness, m.cfg.Minimize)
}

func (m *PopulationMonitor) checkpoint(work *State, writer *asyncCheckpointer) {
	if writer == nil || work.Generation%m.cfg.CheckpointInterval != 0 {
		return
	}
	snap := work.Clone()
	m.saveRandom(&snap)
	writer.submit(snap.Snapshot(m.cfg))
}
