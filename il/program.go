// Copyright 2025 ilmut project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package il

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/exp/maps"
)

// Instruction is one element of a program: an operation plus its ordered
// input and output variables and an optional payload. Instructions are
// value types; once part of a Program they must not be mutated.
type Instruction struct {
	Op      *OpInfo
	Inputs  []Var
	Outputs []Var
	Val     uint64 // integer payload for ops with HasVal
	Name    string // name payload for ops with HasName
}

func (ins Instruction) clone() Instruction {
	ins.Inputs = append([]Var(nil), ins.Inputs...)
	ins.Outputs = append([]Var(nil), ins.Outputs...)
	return ins
}

// Program is an immutable, indexable sequence of instructions.
// All edits go through the rewrite builder and produce a new Program.
type Program struct {
	ops   *OpSet
	insns []Instruction

	// Precomputed during construction.
	match  []int // open <-> close back-links, -1 elsewhere
	encl   []int // innermost enclosing block open per instruction, -1 at top level
	depth  []int // scope depth per instruction, 0 at top level
	vdefs  map[Var]varDef
	maxVar Var

	defuseOnce sync.Once
	defuse     *DefUse
}

type varDef struct {
	index int // defining instruction
	depth int // scope depth of the definition
	end   int // last instruction index (inclusive) at which the variable is visible
}

type frame struct {
	open int // opening instruction index, -1 for the root frame
	kind BlockKind
	vars []Var
}

// NewProgram validates insns against the program invariants (well-formed
// block nesting, definition-before-use, no double definition) in one linear
// pass and returns the program, or a MalformedProgramError naming the first
// violating instruction. NewProgram takes ownership of insns.
func NewProgram(ops *OpSet, insns []Instruction) (*Program, error) {
	p := &Program{
		ops:   ops,
		insns: insns,
		match: make([]int, len(insns)),
		encl:  make([]int, len(insns)),
		depth: make([]int, len(insns)),
		vdefs: make(map[Var]varDef),
	}
	frames := []*frame{{open: -1}}
	for i := range insns {
		ins := &insns[i]
		op := ins.Op
		if op == nil {
			return nil, malformed(i, "instruction without an operation")
		}
		if ops.Lookup(op.Code) != op {
			return nil, malformed(i, "operation %v is not in the program's operation table", op.Name)
		}
		if err := checkArity(i, ins); err != nil {
			return nil, err
		}
		p.match[i] = -1
		p.encl[i] = frames[len(frames)-1].open
		p.depth[i] = len(frames) - 1
		for _, v := range ins.Inputs {
			d, ok := p.vdefs[v]
			if !ok {
				return nil, malformed(i, "use of v%v before definition", uint32(v))
			}
			if d.end >= 0 && d.end < i {
				return nil, malformed(i, "use of v%v outside of its defining block", uint32(v))
			}
		}
		outer, inner := ins.Outputs, []Var(nil)
		switch op.Block {
		case BlockOpen:
			outer, inner = ins.Outputs[:op.OuterOuts], ins.Outputs[op.OuterOuts:]
		case BlockContinue, BlockClose:
			top := frames[len(frames)-1]
			if top.open < 0 || top.kind != op.Kind {
				return nil, malformed(i, "%v does not match an open %v block", op.Name, blockKindName(op.Kind))
			}
			for _, v := range top.vars {
				d := p.vdefs[v]
				d.end = i
				p.vdefs[v] = d
			}
			if op.Block == BlockClose {
				p.match[top.open] = i
				p.match[i] = top.open
				frames = frames[:len(frames)-1]
				// The close itself belongs to the enclosing scope, like its open.
				p.encl[i] = frames[len(frames)-1].open
				p.depth[i] = len(frames) - 1
			} else {
				top.vars = nil
				outer, inner = nil, ins.Outputs
			}
		}
		for _, v := range outer {
			if err := p.define(v, i, len(frames)-1, frames[len(frames)-1]); err != nil {
				return nil, err
			}
		}
		if op.Block == BlockOpen {
			frames = append(frames, &frame{open: i, kind: op.Kind})
		}
		for _, v := range inner {
			if err := p.define(v, i, len(frames)-1, frames[len(frames)-1]); err != nil {
				return nil, err
			}
		}
	}
	if len(frames) != 1 {
		open := frames[len(frames)-1].open
		return nil, malformed(open, "block is never closed")
	}
	return p, nil
}

func (p *Program) define(v Var, index, depth int, f *frame) error {
	if _, ok := p.vdefs[v]; ok {
		return malformed(index, "double definition of v%v", uint32(v))
	}
	p.vdefs[v] = varDef{index: index, depth: depth, end: -1}
	f.vars = append(f.vars, v)
	if v > p.maxVar {
		p.maxVar = v
	}
	return nil
}

func checkArity(index int, ins *Instruction) error {
	op := ins.Op
	if op.NumInputs >= 0 && len(ins.Inputs) != op.NumInputs ||
		op.NumInputs < 0 && len(ins.Inputs) < op.MinInputs {
		return malformed(index, "%v: wrong number of inputs, want %v, got %v",
			op.Name, arityStr(op.NumInputs, op.MinInputs), len(ins.Inputs))
	}
	if op.NumOutputs >= 0 && len(ins.Outputs) != op.NumOutputs ||
		op.NumOutputs < 0 && len(ins.Outputs) < op.MinOutputs {
		return malformed(index, "%v: wrong number of outputs, want %v, got %v",
			op.Name, arityStr(op.NumOutputs, op.MinOutputs), len(ins.Outputs))
	}
	return nil
}

func arityStr(num, min int) string {
	if num >= 0 {
		return fmt.Sprint(num)
	}
	return fmt.Sprintf(">=%v", min)
}

func blockKindName(kind BlockKind) string {
	switch kind {
	case KindFunction:
		return "function"
	case KindLoop:
		return "loop"
	case KindIf:
		return "if"
	case KindTry:
		return "try"
	case KindClass:
		return "class"
	}
	return "none"
}

// Ops returns the operation table the program was constructed against.
func (p *Program) Ops() *OpSet {
	return p.ops
}

func (p *Program) Len() int {
	return len(p.insns)
}

// At returns the instruction at index i. The returned value shares operand
// slices with the program and must be treated as read-only.
func (p *Program) At(i int) Instruction {
	return p.insns[i]
}

// Instructions returns a fresh slice of the program's instructions,
// suitable as a starting point for building an edited instruction list.
func (p *Program) Instructions() []Instruction {
	insns := make([]Instruction, len(p.insns))
	for i, ins := range p.insns {
		insns[i] = ins.clone()
	}
	return insns
}

// Variables returns all variables defined anywhere in the program, sorted.
func (p *Program) Variables() []Var {
	vars := maps.Keys(p.vdefs)
	sort.Slice(vars, func(i, j int) bool { return vars[i] < vars[j] })
	return vars
}

// MatchingClose returns the index of the close instruction matching the
// block open at index i. Panics if i is not a block open.
func (p *Program) MatchingClose(i int) int {
	if p.insns[i].Op.Block != BlockOpen {
		panic(fmt.Sprintf("il: instruction #%v is not a block open", i))
	}
	return p.match[i]
}

// MatchingOpen returns the index of the open instruction matching the
// block close at index i. Panics if i is not a block close.
func (p *Program) MatchingOpen(i int) int {
	if p.insns[i].Op.Block != BlockClose {
		panic(fmt.Sprintf("il: instruction #%v is not a block close", i))
	}
	return p.match[i]
}

// Depth returns the scope depth of the instruction at index i
// (0 for top-level instructions).
func (p *Program) Depth(i int) int {
	return p.depth[i]
}

// String generates a very compact program description (mostly for debug output).
func (p *Program) String() string {
	buf := new(bytes.Buffer)
	for i := range p.insns {
		if i != 0 {
			fmt.Fprintf(buf, "-")
		}
		fmt.Fprintf(buf, "%v", p.insns[i].Op.Name)
	}
	return buf.String()
}
