// Copyright 2025 ilmut project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Def-use analysis of programs. The index answers "which instruction
// defines V" and "which instructions read V" for one program; it replaces
// the ad hoc backward/forward scans that pattern code would otherwise
// reimplement with subtly different bugs.

package il

// DefUse is the precomputed def-use index of a single program.
// It is built lazily, once, and shared by all callers; queries with
// variables from a different program fail with UnknownVariableError
// rather than silently resolving to an unrelated definition.
type DefUse struct {
	p    *Program
	uses map[Var][]int
}

// DefUse returns the def-use index of the program, building it on first use.
func (p *Program) DefUse() *DefUse {
	p.defuseOnce.Do(func() {
		du := &DefUse{p: p, uses: make(map[Var][]int)}
		for i := range p.insns {
			for _, v := range p.insns[i].Inputs {
				du.uses[v] = append(du.uses[v], i)
			}
		}
		p.defuse = du
	})
	return p.defuse
}

// DefinitionOf returns the index of the instruction defining v.
func (du *DefUse) DefinitionOf(v Var) (int, error) {
	d, ok := du.p.vdefs[v]
	if !ok {
		return 0, &UnknownVariableError{Var: v}
	}
	return d.index, nil
}

// UsesOf returns the ordered instruction indices reading v. A defined but
// never read variable yields an empty slice, not an error. The returned
// slice is shared and must be treated as read-only.
func (du *DefUse) UsesOf(v Var) ([]int, error) {
	if _, ok := du.p.vdefs[v]; !ok {
		return nil, &UnknownVariableError{Var: v}
	}
	return du.uses[v], nil
}

// ScopeDepthOf returns the scope depth at which v is defined
// (0 for top-level definitions).
func (du *DefUse) ScopeDepthOf(v Var) (int, error) {
	d, ok := du.p.vdefs[v]
	if !ok {
		return 0, &UnknownVariableError{Var: v}
	}
	return d.depth, nil
}

// VisibleAt reports whether v is in scope at instruction index idx,
// i.e. whether an instruction at idx could legally read it.
func (du *DefUse) VisibleAt(v Var, idx int) (bool, error) {
	d, ok := du.p.vdefs[v]
	if !ok {
		return false, &UnknownVariableError{Var: v}
	}
	return d.index < idx && (d.end < 0 || idx <= d.end), nil
}

// IsDead reports whether v is defined but never read.
func (du *DefUse) IsDead(v Var) (bool, error) {
	if _, ok := du.p.vdefs[v]; !ok {
		return false, &UnknownVariableError{Var: v}
	}
	return len(du.uses[v]) == 0, nil
}
