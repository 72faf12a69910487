// Copyright 2025 ilmut project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package mutator drives the pattern-match-and-rewrite engine: a Rule is a
// declarative (pattern, emission plan) pair, and a Mutator applies an
// ordered rule list to candidate programs on behalf of a host fuzzing loop.
package mutator

import (
	"context"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ilmut/ilmut/il"
	"github.com/ilmut/ilmut/pkg/log"
	"github.com/ilmut/ilmut/pkg/stat"
)

// Rule pairs a pattern with the emission plan template instantiated on
// each of its matches. Rules are immutable after registration.
type Rule struct {
	Name    string
	Pattern *il.Pattern
	Plan    *il.PlanTemplate

	hits    *stat.Val
	misses  *stat.Val
	invalid *stat.Val
}

// Mutator holds a validated, ordered rule list. It is stateless across
// Apply calls and safe for concurrent use.
type Mutator struct {
	ops   *il.OpSet
	rules []*Rule
}

// New validates every rule pattern against the operation table and returns
// a mutator applying the rules in the given order.
func New(ops *il.OpSet, rules ...*Rule) (*Mutator, error) {
	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rule without a name")
		}
		if r.Pattern == nil || r.Plan == nil {
			return nil, fmt.Errorf("rule %q: missing pattern or plan", r.Name)
		}
		if err := r.Pattern.Validate(ops); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		r.hits = stat.New("rule "+r.Name+" hits", "programs rewritten by the rule")
		r.misses = stat.New("rule "+r.Name+" misses", "programs the rule did not match")
		r.invalid = stat.New("rule "+r.Name+" invalid", "rewrites rejected by re-validation")
	}
	return &Mutator{ops: ops, rules: rules}, nil
}

// Result identifies which rule matched where, and carries the rewritten
// program. The ID correlates log and statistics entries of the host.
type Result struct {
	ID      uuid.UUID
	Rule    string
	Start   int
	End     int
	Program *il.Program
}

// Apply runs the rules in order against p and performs the rewrite of the
// first rule that matches. Returns (nil, nil) if no rule matches. An
// InvalidRewriteError from the builder is surfaced to the caller, which
// decides whether to disable the offending rule or abort; the invalid
// program itself is never returned.
func (m *Mutator) Apply(p *il.Program) (*Result, error) {
	for _, r := range m.rules {
		match := r.Pattern.Match(p)
		if match == nil {
			r.misses.Add(1)
			continue
		}
		newProg, err := il.Build(p, match, r.Plan.Plan(match))
		if err != nil {
			r.invalid.Add(1)
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		r.hits.Add(1)
		res := &Result{
			ID:      uuid.New(),
			Rule:    r.Name,
			Start:   match.Start,
			End:     match.End,
			Program: newProg,
		}
		log.Logf(2, "rule %v matched [%v,%v) id=%v", r.Name, res.Start, res.End, res.ID)
		return res, nil
	}
	return nil, nil
}

// ApplyBatch applies the mutator to independent programs concurrently.
// The engine itself is pure over immutable inputs, so the only coordination
// needed is the worker fan-out. Results are index-aligned with progs; a nil
// entry means no rule matched that program.
func (m *Mutator) ApplyBatch(ctx context.Context, progs []*il.Program) ([]*Result, error) {
	results := make([]*Result, len(progs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range progs {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := m.Apply(p)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
