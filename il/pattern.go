// Copyright 2025 ilmut project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package il

import (
	"fmt"
	"strings"
)

// Pattern is a static, data-only description of an instruction sequence.
// Patterns are constructed once (typically at startup), validated, and then
// reused across many programs; they are never mutated after construction
// and are safe for concurrent use.
type Pattern struct {
	Name string
	// SameScope requires all shapes of this pattern to match instructions
	// within the same innermost block, so that a rewrite driven by the
	// match cannot splice code across a scope boundary.
	SameScope bool
	Shapes    []*Shape
}

// Shape describes the expected operation and operand-identity constraints
// for a single matched instruction.
//
// Operand slot constraints use a tiny reference language:
// "" matches anything, "x" binds the pattern-local name x on first sight
// and requires equality with the bound variable afterwards, and "!x"
// requires inequality with the variable already bound to x.
type Shape struct {
	Op    Opcode // AnyOp matches any operation
	Label string // optional, for payload cross-references and diagnostics
	// MaxGap bounds the number of unrelated instructions allowed before
	// this shape: 0 means strictly adjacent to the previous shape,
	// -1 means unbounded. Ignored for the first shape of a sequence.
	MaxGap int
	In     []string
	Out    []string
	Val    *uint64 // exact integer payload
	// ValRef constrains the integer payload against that of an earlier
	// labeled shape: "lbl" requires equality, "!lbl" inequality.
	ValRef string
	Name   string // required name payload, "" matches any
	// Sub is matched against the instruction range between this block's
	// open and its matching close. Only valid on block-open operations.
	// The next shape of the enclosing sequence continues after the close.
	Sub *Pattern
}

// Match is the result of applying a Pattern to a Program: the covered
// source range, the matched instruction index per shape, and the binding
// environment accumulated during the scan.
type Match struct {
	Pattern *Pattern
	Program *Program
	Start   int // first covered instruction index
	End     int // one past the last covered instruction index
	Index   []int          // matched instruction index per top-level shape
	Labels  map[string]int // matched instruction index per labeled shape, sub-shapes included
	Bind    map[string]Var
	Vals    map[string]uint64 // integer payload per labeled shape
}

// Validate checks the pattern for internal consistency against an
// operation table: known opcodes, operand slot counts compatible with
// operation arity, references bound before use, and well-placed sub-scans.
// A pattern that fails validation can never produce a match.
func (pat *Pattern) Validate(ops *OpSet) error {
	bound := make(map[string]bool)
	labels := make(map[string]bool)
	return pat.validate(ops, bound, labels)
}

func (pat *Pattern) validate(ops *OpSet, bound, labels map[string]bool) error {
	if len(pat.Shapes) == 0 {
		return fmt.Errorf("pattern %q has no shapes", pat.Name)
	}
	for i, s := range pat.Shapes {
		if err := s.validate(ops, bound, labels); err != nil {
			return fmt.Errorf("pattern %q: shape #%v: %w", pat.Name, i, err)
		}
	}
	return nil
}

func (s *Shape) validate(ops *OpSet, bound, labels map[string]bool) error {
	var op *OpInfo
	if s.Op != AnyOp {
		op = ops.Lookup(s.Op)
		if op == nil {
			return fmt.Errorf("unknown opcode %v", s.Op)
		}
	}
	if op != nil {
		if op.NumInputs >= 0 && len(s.In) > op.NumInputs {
			return fmt.Errorf("%v has %v inputs, shape constrains %v", op.Name, op.NumInputs, len(s.In))
		}
		if op.NumOutputs >= 0 && len(s.Out) > op.NumOutputs {
			return fmt.Errorf("%v has %v outputs, shape constrains %v", op.Name, op.NumOutputs, len(s.Out))
		}
	}
	if s.MaxGap < -1 {
		return fmt.Errorf("bad MaxGap %v", s.MaxGap)
	}
	if s.Val != nil && s.ValRef != "" {
		return fmt.Errorf("both Val and ValRef set")
	}
	if s.ValRef != "" {
		lbl, _ := parseRef(s.ValRef)
		if !labels[lbl] {
			return fmt.Errorf("ValRef %q does not name an earlier labeled shape", s.ValRef)
		}
	}
	if s.Label != "" {
		if labels[s.Label] {
			return fmt.Errorf("duplicate label %q", s.Label)
		}
		labels[s.Label] = true
	}
	for _, ref := range append(append([]string{}, s.In...), s.Out...) {
		if ref == "" {
			continue
		}
		lbl, neg := parseRef(ref)
		if lbl == "" {
			return fmt.Errorf("empty operand reference")
		}
		if neg && !bound[lbl] {
			return fmt.Errorf("inequality %q refers to a name that is never bound before it", ref)
		}
		if !neg {
			bound[lbl] = true
		}
	}
	if s.Sub != nil {
		if op == nil || op.Block != BlockOpen {
			return fmt.Errorf("sub-scan on a non-block-open shape")
		}
		if err := s.Sub.validate(ops, bound, labels); err != nil {
			return err
		}
	}
	return nil
}

func parseRef(ref string) (name string, neg bool) {
	if strings.HasPrefix(ref, "!") {
		return ref[1:], true
	}
	return ref, false
}

// Match performs a constrained subsequence search of the pattern over the
// program. Shapes are matched at strictly increasing indices; once the
// matcher commits past a shape it does not backtrack, so a candidate start
// position either extends to a full match or fails. The first full match in
// a left-to-right scan over candidate start positions is returned, which
// together with the earliest-placement rule per shape yields the left-most,
// shortest-span match. Returns nil if the pattern does not occur.
func (pat *Pattern) Match(p *Program) *Match {
	for start := 0; start < p.Len(); start++ {
		if m := pat.matchFrom(p, start); m != nil {
			return m
		}
	}
	return nil
}

// matchEnv is the binding environment threaded through one match attempt.
type matchEnv struct {
	bind   map[string]Var
	vals   map[string]uint64
	labels map[string]int
	lo, hi int // covered range, inclusive
}

func (pat *Pattern) matchFrom(p *Program, start int) *Match {
	env := &matchEnv{
		bind:   make(map[string]Var),
		vals:   make(map[string]uint64),
		labels: make(map[string]int),
		lo:     start,
		hi:     start,
	}
	idxs := make([]int, 0, len(pat.Shapes))
	if !pat.matchSeq(p, start, p.Len(), true, env, &idxs) {
		return nil
	}
	return &Match{
		Pattern: pat,
		Program: p,
		Start:   env.lo,
		End:     env.hi + 1,
		Index:   idxs,
		Labels:  env.labels,
		Bind:    env.bind,
		Vals:    env.vals,
	}
}

// matchSeq matches the pattern's shapes against [from, to). If pinned, the
// first shape must match exactly at from; otherwise it floats anywhere in
// the window (block sub-scans).
func (pat *Pattern) matchSeq(p *Program, from, to int, pinned bool, env *matchEnv, idxs *[]int) bool {
	pos := from
	wantEncl, haveEncl := 0, false
	for si, s := range pat.Shapes {
		limit := to
		if si == 0 && pinned {
			limit = from + 1
		} else if si > 0 && s.MaxGap >= 0 {
			limit = min(to, pos+s.MaxGap+1)
		}
		matched := -1
		for idx := pos; idx < limit; idx++ {
			if pat.SameScope && haveEncl && p.encl[idx] != wantEncl {
				continue
			}
			if s.match(p, idx, env) {
				matched = idx
				break
			}
		}
		if matched < 0 {
			return false
		}
		if !haveEncl {
			wantEncl, haveEncl = p.encl[matched], true
		}
		*idxs = append(*idxs, matched)
		if s.Label != "" {
			env.labels[s.Label] = matched
		}
		env.lo = min(env.lo, matched)
		env.hi = max(env.hi, matched)
		pos = matched + 1
		if s.Sub != nil {
			closeIdx := p.MatchingClose(matched)
			var subIdxs []int
			if !s.Sub.matchSeq(p, matched+1, closeIdx, false, env, &subIdxs) {
				return false
			}
			// The sub-scan consumes the whole block.
			env.hi = max(env.hi, closeIdx)
			pos = closeIdx + 1
		}
	}
	return true
}

// match reports whether the instruction at idx satisfies the shape,
// extending the binding environment on success. A failed attempt leaves
// the environment untouched.
func (s *Shape) match(p *Program, idx int, env *matchEnv) bool {
	ins := &p.insns[idx]
	if s.Op != AnyOp && ins.Op.Code != s.Op {
		return false
	}
	if s.Val != nil && ins.Val != *s.Val {
		return false
	}
	if s.Name != "" && ins.Name != s.Name {
		return false
	}
	if s.ValRef != "" {
		lbl, neg := parseRef(s.ValRef)
		other, ok := env.vals[lbl]
		if !ok || (ins.Val == other) == neg {
			return false
		}
	}
	if len(s.In) > len(ins.Inputs) || len(s.Out) > len(ins.Outputs) {
		return false
	}
	fresh := make(map[string]Var)
	lookup := func(name string) (Var, bool) {
		if v, ok := env.bind[name]; ok {
			return v, true
		}
		v, ok := fresh[name]
		return v, ok
	}
	checkSlots := func(refs []string, vars []Var) bool {
		for k, ref := range refs {
			if ref == "" {
				continue
			}
			name, neg := parseRef(ref)
			bound, ok := lookup(name)
			if neg {
				if !ok || vars[k] == bound {
					return false
				}
				continue
			}
			if ok {
				if vars[k] != bound {
					return false
				}
				continue
			}
			fresh[name] = vars[k]
		}
		return true
	}
	if !checkSlots(s.In, ins.Inputs) || !checkSlots(s.Out, ins.Outputs) {
		return false
	}
	for name, v := range fresh {
		env.bind[name] = v
	}
	if s.Label != "" {
		env.vals[s.Label] = ins.Val
	}
	return true
}
