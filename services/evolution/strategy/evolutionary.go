// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/mutation"
)

// =============================================================================
// POPULATION
// =============================================================================

// Individual is one candidate program in a population.
type Individual struct {
	ID         string   `json:"id"`
	Code       string   `json:"code"`
	Fitness    float64  `json:"fitness"`
	Generation int      `json:"generation"`
	ParentIDs  []string `json:"parent_ids,omitempty"`
}

// Population is one generation's worth of individuals. A viable
// population holds at least 2.
type Population struct {
	Individuals []*Individual `json:"individuals"`
	Generation  int           `json:"generation"`
}

// Best returns the fittest individual, breaking fitness ties toward
// the lower generation (the incumbent wins ties).
func (p *Population) Best() *Individual {
	var best *Individual
	for _, ind := range p.Individuals {
		if best == nil ||
			ind.Fitness > best.Fitness ||
			(ind.Fitness == best.Fitness && ind.Generation < best.Generation) {
			best = ind
		}
	}
	return best
}

// Diversity is the fraction of distinct programs in the population,
// in (0, 1].
func (p *Population) Diversity() float64 {
	if len(p.Individuals) == 0 {
		return 0
	}
	distinct := make(map[string]bool, len(p.Individuals))
	for _, ind := range p.Individuals {
		distinct[ind.Code] = true
	}
	return float64(len(distinct)) / float64(len(p.Individuals))
}

// =============================================================================
// CONFIG
// =============================================================================

// SelectionMethod names a parent-selection scheme.
type SelectionMethod string

const (
	SelectionTournament          SelectionMethod = "tournament"
	SelectionFitnessProportional SelectionMethod = "fitness_proportional"
)

// EvolutionaryConfig tunes the evolutionary strategy.
type EvolutionaryConfig struct {
	// PopulationSize is individuals per generation; minimum 2.
	PopulationSize int

	// MaxGenerations bounds the search.
	MaxGenerations int

	// PlateauWindow terminates early when the best fitness fails to
	// improve by more than PlateauEpsilon over this many consecutive
	// generations. Zero disables plateau termination.
	PlateauWindow  int
	PlateauEpsilon float64

	// Selection picks the parent-selection scheme.
	Selection SelectionMethod

	// TournamentK is the tournament size when Selection is
	// "tournament".
	TournamentK int

	// CrossoverRate is the probability an offspring comes from
	// recombination rather than point mutation, in [0, 1].
	CrossoverRate float64

	// MaxResamples bounds crossover retries per recombination.
	MaxResamples int

	// EvalConcurrency bounds parallel candidate evaluations.
	EvalConcurrency int

	// TargetOutput, when set, blends output similarity into fitness.
	TargetOutput string

	// Seed makes the search deterministic.
	Seed int64
}

// DefaultEvolutionaryConfig returns defaults sized for a single
// subject program.
func DefaultEvolutionaryConfig() EvolutionaryConfig {
	return EvolutionaryConfig{
		PopulationSize:  8,
		MaxGenerations:  10,
		PlateauWindow:   3,
		PlateauEpsilon:  1e-6,
		Selection:       SelectionTournament,
		TournamentK:     3,
		CrossoverRate:   0.5,
		MaxResamples:    5,
		EvalConcurrency: 4,
		Seed:            1,
	}
}

// Validate checks config bounds.
func (c *EvolutionaryConfig) Validate() error {
	if c.PopulationSize < 2 {
		return fmt.Errorf("%w: population size %d", ErrPopulationTooSmall, c.PopulationSize)
	}
	if c.MaxGenerations < 1 {
		return fmt.Errorf("max generations must be >= 1, got %d", c.MaxGenerations)
	}
	if c.PlateauWindow < 0 {
		return fmt.Errorf("plateau window must be >= 0, got %d", c.PlateauWindow)
	}
	if c.Selection != SelectionTournament && c.Selection != SelectionFitnessProportional {
		return fmt.Errorf("unknown selection method %q", c.Selection)
	}
	if c.TournamentK < 2 {
		return fmt.Errorf("tournament size must be >= 2, got %d", c.TournamentK)
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 {
		return fmt.Errorf("crossover rate must be in [0, 1], got %v", c.CrossoverRate)
	}
	if c.MaxResamples < 1 {
		return fmt.Errorf("max resamples must be >= 1, got %d", c.MaxResamples)
	}
	if c.EvalConcurrency < 1 {
		return fmt.Errorf("eval concurrency must be >= 1, got %d", c.EvalConcurrency)
	}
	return nil
}

// =============================================================================
// EVOLUTIONARY STRATEGY
// =============================================================================

// EvolutionaryStrategy runs a small genetic search over whole
// programs: catalogue mutations for variation, uniform crossover for
// recombination, elitism so the best fitness never regresses, and
// plateau termination when improvement stalls. The final best
// individual is emitted as a single whole-program proposal.
//
// Thread Safety: safe for concurrent use; the shared rand source is
// guarded by a mutex.
type EvolutionaryStrategy struct {
	mutator   *mutation.Mutator
	evaluator CandidateEvaluator
	crossover *UniformCrossover
	cfg       EvolutionaryConfig
	logger    *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEvolutionaryStrategy creates the strategy. The evaluator is
// required: fitness here means sandboxed execution.
func NewEvolutionaryStrategy(mutator *mutation.Mutator, evaluator CandidateEvaluator, cfg EvolutionaryConfig, logger *slog.Logger) (*EvolutionaryStrategy, error) {
	if mutator == nil {
		return nil, fmt.Errorf("mutator cannot be nil")
	}
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid evolutionary config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	crossover, err := NewUniformCrossover(mutator, cfg.MaxResamples, cfg.Seed)
	if err != nil {
		return nil, err
	}
	return &EvolutionaryStrategy{
		mutator:   mutator,
		evaluator: evaluator,
		crossover: crossover,
		cfg:       cfg,
		logger:    logger,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Name returns "evolutionary".
func (s *EvolutionaryStrategy) Name() string { return "evolutionary" }

// ProposeMutations runs the genetic search and emits the best evolved
// program as one whole-program proposal. Returns an empty slice when
// the search never beats the incumbent.
func (s *EvolutionaryStrategy) ProposeMutations(ctx context.Context, code string, _ *Context) ([]*Proposal, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	pop, err := s.seedPopulation(code)
	if err != nil {
		return nil, err
	}
	if err := s.evaluate(ctx, pop.Individuals); err != nil {
		return nil, err
	}

	incumbent := pop.Individuals[0]
	bestHistory := []float64{pop.Best().Fitness}

	for gen := 1; gen <= s.cfg.MaxGenerations; gen++ {
		next, err := s.nextGeneration(ctx, pop)
		if err != nil {
			return nil, err
		}
		pop = next

		best := pop.Best()
		bestHistory = append(bestHistory, best.Fitness)
		s.logger.Debug("generation complete",
			slog.Int("generation", gen),
			slog.Float64("best_fitness", best.Fitness),
			slog.Float64("diversity", pop.Diversity()))

		if s.plateaued(bestHistory) {
			s.logger.Info("search plateaued",
				slog.Int("generation", gen),
				slog.Float64("best_fitness", best.Fitness))
			break
		}
	}

	best := pop.Best()
	if best.Code == code || best.Fitness <= incumbent.Fitness {
		return []*Proposal{}, nil
	}
	return []*Proposal{{
		StrategyName: s.Name(),
		Mutations: []mutation.Mutation{{
			Path:        mutation.NodePath{},
			Original:    code,
			Replacement: best.Code,
			Kind:        mutation.KindBlockReplace,
		}},
		Rationale: fmt.Sprintf("evolved over %d generations, fitness %.3f -> %.3f",
			pop.Generation, incumbent.Fitness, best.Fitness),
		Confidence: best.Fitness,
		Risk:       RiskHigh,
	}}, nil
}

// EvaluateMutation scores by canonical fitness, blended with output
// similarity when a target output is configured.
func (s *EvolutionaryStrategy) EvaluateMutation(ctx context.Context, eval *Evaluation) (float64, error) {
	if ctx == nil {
		return 0, ErrNilContext
	}
	base := BaseFitness(eval)
	if s.cfg.TargetOutput == "" || base == 0 || eval.Sandbox == nil {
		return base, nil
	}
	similarity := OutputSimilarity(eval.Sandbox.Output, s.cfg.TargetOutput)
	return clamp01(0.8*base + 0.2*similarity), nil
}

// seedPopulation builds generation 0: the incumbent plus catalogue
// mutants of it. The incumbent is duplicated when too few valid
// mutants exist, so the population never starts below 2.
func (s *EvolutionaryStrategy) seedPopulation(code string) (*Population, error) {
	kinds := mutableKinds[s.mutator.Language()]
	targets, err := s.mutator.Targets(code, kinds...)
	if err != nil {
		return nil, fmt.Errorf("target discovery failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pop := &Population{Generation: 0}
	pop.Individuals = append(pop.Individuals, &Individual{
		ID:         uuid.New().String(),
		Code:       code,
		Generation: 0,
	})
	for len(pop.Individuals) < s.cfg.PopulationSize {
		mutant, ok := s.mutateLocked(code, targets)
		if !ok {
			mutant = code
		}
		pop.Individuals = append(pop.Individuals, &Individual{
			ID:         uuid.New().String(),
			Code:       mutant,
			Generation: 0,
			ParentIDs:  []string{pop.Individuals[0].ID},
		})
	}
	return pop, nil
}

// nextGeneration produces offspring via selection, crossover, and
// mutation, carrying the elite forward unchanged.
func (s *EvolutionaryStrategy) nextGeneration(ctx context.Context, pop *Population) (*Population, error) {
	if len(pop.Individuals) < 2 {
		return nil, ErrPopulationTooSmall
	}
	gen := pop.Generation + 1
	next := &Population{Generation: gen}

	// Elitism: the best individual survives untouched, so the
	// population's max fitness is non-decreasing across generations.
	elite := pop.Best()
	next.Individuals = append(next.Individuals, elite)

	var fresh []*Individual
	for len(next.Individuals)+len(fresh) < s.cfg.PopulationSize {
		child, parents := s.offspring(pop)
		fresh = append(fresh, &Individual{
			ID:         uuid.New().String(),
			Code:       child,
			Generation: gen,
			ParentIDs:  parents,
		})
	}
	if err := s.evaluate(ctx, fresh); err != nil {
		return nil, err
	}
	next.Individuals = append(next.Individuals, fresh...)
	return next, nil
}

// offspring produces one child program and its parent IDs.
func (s *EvolutionaryStrategy) offspring(pop *Population) (string, []string) {
	s.mu.Lock()
	parentA := s.selectLocked(pop)
	parentB := s.selectLocked(pop)
	doCrossover := s.rng.Float64() < s.cfg.CrossoverRate && parentA.ID != parentB.ID
	s.mu.Unlock()

	if doCrossover {
		result, err := s.crossover.Combine(parentA.Code, parentB.Code)
		if err == nil && result.Success {
			return result.Child, []string{parentA.ID, parentB.ID}
		}
		// Fall through to mutation when recombination fails.
	}

	kinds := mutableKinds[s.mutator.Language()]
	targets, err := s.mutator.Targets(parentA.Code, kinds...)
	if err != nil {
		return parentA.Code, []string{parentA.ID}
	}
	s.mu.Lock()
	mutant, ok := s.mutateLocked(parentA.Code, targets)
	s.mu.Unlock()
	if !ok {
		mutant = parentA.Code
	}
	return mutant, []string{parentA.ID}
}

// mutateLocked applies one random catalogue mutation. Caller holds
// s.mu.
func (s *EvolutionaryStrategy) mutateLocked(code string, targets []mutation.Target) (string, bool) {
	if len(targets) == 0 {
		return "", false
	}
	for _, idx := range s.rng.Perm(len(targets)) {
		mut, ok := mutationForTarget(targets[idx], s.rng)
		if !ok {
			continue
		}
		applied := s.mutator.Apply(code, mut)
		if applied.Success && s.mutator.ParsesClean(applied.Mutated) {
			return applied.Mutated, true
		}
	}
	return "", false
}

// selectLocked picks a parent per the configured scheme. Caller holds
// s.mu.
func (s *EvolutionaryStrategy) selectLocked(pop *Population) *Individual {
	if s.cfg.Selection == SelectionFitnessProportional {
		return s.rouletteLocked(pop)
	}
	return s.tournamentLocked(pop)
}

// tournamentLocked draws TournamentK individuals and keeps the best,
// breaking fitness ties toward the lower generation.
func (s *EvolutionaryStrategy) tournamentLocked(pop *Population) *Individual {
	var winner *Individual
	for i := 0; i < s.cfg.TournamentK; i++ {
		contender := pop.Individuals[s.rng.Intn(len(pop.Individuals))]
		if winner == nil ||
			contender.Fitness > winner.Fitness ||
			(contender.Fitness == winner.Fitness && contender.Generation < winner.Generation) {
			winner = contender
		}
	}
	return winner
}

// rouletteLocked selects proportionally to fitness, falling back to
// uniform when every fitness is zero.
func (s *EvolutionaryStrategy) rouletteLocked(pop *Population) *Individual {
	total := 0.0
	for _, ind := range pop.Individuals {
		total += ind.Fitness
	}
	if total == 0 {
		return pop.Individuals[s.rng.Intn(len(pop.Individuals))]
	}
	spin := s.rng.Float64() * total
	for _, ind := range pop.Individuals {
		spin -= ind.Fitness
		if spin <= 0 {
			return ind
		}
	}
	return pop.Individuals[len(pop.Individuals)-1]
}

// evaluate scores individuals through the engine-supplied evaluator,
// bounded by EvalConcurrency.
func (s *EvolutionaryStrategy) evaluate(ctx context.Context, individuals []*Individual) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EvalConcurrency)
	for _, ind := range individuals {
		g.Go(func() error {
			fitness, err := s.evaluator.Evaluate(gctx, ind.Code)
			if err != nil {
				return fmt.Errorf("evaluating individual %s: %w", ind.ID, err)
			}
			ind.Fitness = fitness
			return nil
		})
	}
	return g.Wait()
}

// plateaued reports whether the best fitness has failed to improve by
// more than PlateauEpsilon across the configured window.
func (s *EvolutionaryStrategy) plateaued(bestHistory []float64) bool {
	w := s.cfg.PlateauWindow
	if w == 0 || len(bestHistory) <= w {
		return false
	}
	recent := bestHistory[len(bestHistory)-1]
	baseline := bestHistory[len(bestHistory)-1-w]
	return recent-baseline <= s.cfg.PlateauEpsilon
}
