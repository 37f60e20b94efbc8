// Package threat scores honeypot events against an attack corpus.
package threat

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/V4T54L/honeywatch/internal/domain"
)

// Engine folds an ordered rule chain over each event. The corpus is swapped
// atomically, so Evaluate never observes a half-loaded corpus.
type Engine struct {
	corpus   atomic.Pointer[domain.AttackCorpus]
	rules    []Rule
	scoreCap int
}

// Option configures an Engine.
type Option func(*Engine)

// WithScoreCap clamps the risk score. Zero leaves it uncapped.
func WithScoreCap(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.scoreCap = limit
		}
	}
}

// WithRules replaces the default rule chain.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) {
		e.rules = rules
	}
}

// NewEngine creates an engine. A nil corpus is replaced by an empty one.
func NewEngine(corpus *domain.AttackCorpus, opts ...Option) *Engine {
	e := &Engine{rules: DefaultRules()}
	for _, opt := range opts {
		opt(e)
	}
	e.Reload(corpus)
	return e
}

// Reload swaps in a new corpus for subsequent evaluations.
func (e *Engine) Reload(corpus *domain.AttackCorpus) {
	if corpus == nil {
		corpus = domain.EmptyCorpus()
	}
	e.corpus.Store(corpus)
}

// Corpus returns the corpus currently in use.
func (e *Engine) Corpus() *domain.AttackCorpus {
	return e.corpus.Load()
}

// Evaluate scores one event. It never panics; rules that fail are skipped and
// reported through ThreatInsight.EvaluationError.
func (e *Engine) Evaluate(ev domain.RawEvent) domain.ThreatInsight {
	corpus := e.corpus.Load()
	insight := domain.ThreatInsight{
		Level:      domain.LevelLow,
		Indicators: []string{},
	}

	var errs []error
	for _, rule := range e.rules {
		f, err := runRule(rule, ev, corpus)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		insight.Level = domain.MaxLevel(insight.Level, f.MinLevel)
		insight.RiskScore += f.ScoreDelta
		insight.Indicators = append(insight.Indicators, f.Indicators...)
		if f.PortAnalysis != nil {
			insight.PortAnalysis = f.PortAnalysis
		}
	}

	if insight.RiskScore < 0 {
		insight.RiskScore = 0
	}
	if e.scoreCap > 0 && insight.RiskScore > e.scoreCap {
		insight.RiskScore = e.scoreCap
	}
	insight.Recommendations = Recommendations(insight.Level)
	if len(errs) > 0 {
		insight.EvaluationError = errors.Join(errs...).Error()
	}
	return insight
}

func runRule(rule Rule, ev domain.RawEvent, corpus *domain.AttackCorpus) (f Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule %s panicked: %v", rule.Name(), r)
		}
	}()
	return rule.Evaluate(ev, corpus)
}
