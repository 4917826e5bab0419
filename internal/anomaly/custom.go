package anomaly

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// CustomEngine evaluates operator-defined CEL rules against a transaction
// and each of its entities. The fixed rule set stays hand-coded; custom
// rules extend the open anomaly taxonomy without a redeploy.
type CustomEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*compiledRule
}

type compiledRule struct {
	config  *domain.CustomRule
	program cel.Program
}

// NewCustomEngine creates a custom rule engine with the standard variable
// environment.
func NewCustomEngine() (*CustomEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("entity_name", cel.StringType),
		cel.Variable("entity_type", cel.StringType),
		cel.Variable("jurisdiction", cel.StringType),
		cel.Variable("sanctions", cel.BoolType),
		cel.Variable("reputation", cel.DoubleType),
		cel.Variable("confidence", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CustomEngine{
		env:      env,
		compiled: make(map[string]*compiledRule),
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *CustomEngine) ValidateRule(cfg *domain.CustomRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *CustomEngine) LoadRule(cfg *domain.CustomRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiled[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple enabled rules.
func (e *CustomEngine) LoadRules(configs []*domain.CustomRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules replaces all loaded rules (hot reload from the repository).
func (e *CustomEngine) ReloadRules(configs []*domain.CustomRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*compiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	e.compiled = next
	return nil
}

// LoadedRules returns the currently loaded rule configurations.
func (e *CustomEngine) LoadedRules() []*domain.CustomRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.CustomRule, 0, len(e.compiled))
	for _, c := range e.compiled {
		rules = append(rules, c.config)
	}
	return rules
}

// RulesCount returns the number of loaded rules.
func (e *CustomEngine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Evaluate runs every loaded rule against each entity and returns the
// anomalies for rules that matched. An expression error on one rule skips
// that rule for that entity; it never fails the evaluation.
func (e *CustomEngine) Evaluate(amount float64, currency string, entities []*domain.Entity) []domain.Anomaly {
	e.mu.RLock()
	rules := make([]*compiledRule, 0, len(e.compiled))
	for _, r := range e.compiled {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	var anomalies []domain.Anomaly
	for _, entity := range entities {
		activation := activationFor(amount, currency, entity)

		for _, rule := range rules {
			out, _, err := rule.program.Eval(activation)
			if err != nil {
				continue
			}
			matched, ok := out.(types.Bool)
			if !ok || !bool(matched) {
				continue
			}

			anomalies = append(anomalies, domain.Anomaly{
				Type:        rule.config.AnomalyType,
				Severity:    domain.Clamp01(rule.config.Severity),
				Description: fmt.Sprintf("%s: %s", rule.config.Name, entity.Name),
				Evidence:    []string{fmt.Sprintf("Custom rule %s matched", rule.config.ID)},
			})
		}
	}

	return anomalies
}

func activationFor(amount float64, currency string, e *domain.Entity) map[string]any {
	reputation := 0.0
	if r, ok := e.Reputation(); ok {
		reputation = r
	}
	return map[string]any{
		"amount":       amount,
		"currency":     currency,
		"entity_name":  e.Name,
		"entity_type":  string(e.Type),
		"jurisdiction": strings.ToLower(e.Jurisdiction),
		"sanctions":    e.SanctionsStatus,
		"reputation":   reputation,
		"confidence":   e.ConfidenceScore,
	}
}

// Close cleans up the engine.
func (e *CustomEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*compiledRule)
	return nil
}

func (e *CustomEngine) compileRule(cfg *domain.CustomRule) (*compiledRule, error) {
	if cfg.AnomalyType == "" {
		return nil, fmt.Errorf("rule %s: anomalyType is required", cfg.ID)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &compiledRule{config: cfg, program: program}, nil
}
