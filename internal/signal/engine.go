// Package signal provides the CEL-Go based suspicion-signal engine. Signals
// are the heuristic member of the scoring ensemble: each one is a compiled
// CEL expression over the named feature slots of one domain, with a weight
// and a plain-language risk factor. Unlike the trained models, signals need
// no training data, so the engine always has an answer.
package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/openproctor/kestrel/internal/domain"
)

// Engine compiles and evaluates suspicion signals.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	compiled   map[string]*compiledSignal
	maxWorkers int
}

type compiledSignal struct {
	Config  *domain.SignalConfig
	Program cel.Program
}

// NewEngine creates a signal engine. maxWorkers bounds concurrent signal
// evaluation per assessment.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 16
	}

	env, err := cel.NewEnv(
		cel.Variable("features", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("domain", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		compiled:   make(map[string]*compiledSignal),
		maxWorkers: maxWorkers,
	}, nil
}

// Validate compiles a signal without loading it.
func (e *Engine) Validate(cfg *domain.SignalConfig) error {
	if cfg == nil {
		return fmt.Errorf("signal config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(cfg)
	return err
}

// Load compiles and publishes one signal, replacing any previous version
// with the same ID.
func (e *Engine) Load(cfg *domain.SignalConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(cfg)
	if err != nil {
		return err
	}
	e.compiled[cfg.ID] = compiled
	return nil
}

// LoadAll loads every enabled signal from a list.
func (e *Engine) LoadAll(configs []*domain.SignalConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.Load(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reload swaps the full signal set atomically. A compile error leaves the
// previous set untouched.
func (e *Engine) Reload(configs []*domain.SignalConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*compiledSignal)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compile(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	e.compiled = next
	return nil
}

// EvalInput carries one session's extracted features for signal evaluation.
type EvalInput struct {
	TenantID  string
	SessionID string
	Record    domain.SessionRecord
	// Features holds the named slot values per domain, as produced by the
	// feature extractor.
	Features map[domain.Domain]map[string]float64
}

// EvaluateAll evaluates every loaded signal against the input, each signal
// over its own domain's feature slots, in parallel.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvalInput) []domain.SignalResult {
	e.mu.RLock()
	signals := make([]*compiledSignal, 0, len(e.compiled))
	for _, s := range e.compiled {
		signals = append(signals, s)
	}
	e.mu.RUnlock()

	if len(signals) == 0 {
		return nil
	}

	record := input.Record
	if record == nil {
		record = domain.SessionRecord{}
	}

	results := make([]domain.SignalResult, len(signals))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, sig := range signals {
		wg.Add(1)
		go func(idx int, s *compiledSignal) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			feats := input.Features[s.Config.Domain]
			if feats == nil {
				feats = map[string]float64{}
			}
			activation := map[string]any{
				"features": feats,
				"record":   map[string]any(record),
				"domain":   string(s.Config.Domain),
			}
			results[idx] = e.evaluate(s, activation, input)
		}(i, sig)
	}

	wg.Wait()
	return results
}

func (e *Engine) evaluate(s *compiledSignal, activation map[string]any, input *EvalInput) domain.SignalResult {
	start := time.Now()

	result := domain.SignalResult{
		SignalID:  s.Config.ID,
		TenantID:  input.TenantID,
		SessionID: input.SessionID,
		Weight:    s.Config.Weight,
	}

	out, _, err := s.Program.Eval(activation)
	if err != nil {
		result.Err = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	score := toScore(out)
	result.Score = score
	result.Fired = score > 0
	if result.Fired {
		result.Factor = s.Config.Factor
		result.Recommendation = s.Config.Recommendation
	}
	result.ProcessMs = time.Since(start).Milliseconds()
	return result
}

// Composite folds fired signal results into one heuristic suspicion score:
// the weighted sum of fired signals, capped at 1. Errored signals contribute
// nothing.
func Composite(results []domain.SignalResult) float64 {
	var sum float64
	for _, r := range results {
		if r.Fired && r.Err == "" {
			sum += r.Weight * r.Score
		}
	}
	if sum > 1 {
		return 1
	}
	return sum
}

// FiredCount returns the number of fired, error-free results.
func FiredCount(results []domain.SignalResult) int {
	n := 0
	for _, r := range results {
		if r.Fired && r.Err == "" {
			n++
		}
	}
	return n
}

// toScore converts a CEL value to a numeric score. Booleans map to 0/1;
// numeric expressions pass through.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// Count returns the number of loaded signals.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Loaded returns the currently loaded signal configurations.
func (e *Engine) Loaded() []*domain.SignalConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	configs := make([]*domain.SignalConfig, 0, len(e.compiled))
	for _, s := range e.compiled {
		configs = append(configs, s.Config)
	}
	return configs
}

// Close drops all loaded signals.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*compiledSignal)
	return nil
}

func (e *Engine) compile(cfg *domain.SignalConfig) (*compiledSignal, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile signal %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("signal %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for signal %s: %w", cfg.ID, err)
	}

	return &compiledSignal{Config: cfg, Program: program}, nil
}
