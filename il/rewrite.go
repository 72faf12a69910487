// Copyright 2025 ilmut project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package il

import "fmt"

// Plan is an ordered list of copy/emit steps executed by Build to derive a
// new program from a source program and a match. Plans are pure data; all
// mutable build state is local to one Build invocation.
type Plan struct {
	Steps []Step
	// Remap renames variables of copied instructions, for composing
	// rewrites across different variable namespaces. Variables absent
	// from the map keep their identity (the common case).
	Remap map[Var]Var
}

// Step is one emission plan step: either a Copy or an Emit.
type Step interface {
	step()
}

// Copy copies the source instructions [From, To) verbatim
// (modulo variable remapping).
type Copy struct {
	From, To int
}

// Emit splices in newly built instructions with operands resolved from the
// match's binding environment.
type Emit struct {
	Insns []Template
}

func (Copy) step() {}
func (Emit) step() {}

// Template describes one emitted instruction. Operand references resolve
// against the match bindings plus any fresh variables allocated by earlier
// templates of the same plan.
type Template struct {
	Op   Opcode
	Val  uint64
	Name string
	In   []Operand
	Out  []Operand
}

// Operand names the variable an emitted instruction slot uses. With Fresh
// set, a brand-new variable (guaranteed not to collide with any existing
// variable of the destination) is allocated and bound to Ref for later
// templates; otherwise Ref must already be bound.
type Operand struct {
	Ref   string
	Fresh bool
}

// Bound returns an operand resolving to the variable bound to name.
func Bound(name string) Operand {
	return Operand{Ref: name}
}

// Fresh returns an operand allocating a new variable bound to name.
func Fresh(name string) Operand {
	return Operand{Ref: name, Fresh: true}
}

// Build constructs a new program by executing the plan against the source
// program and match. The source is never mutated. The result is fully
// re-validated; a structurally invalid outcome is reported as an
// InvalidRewriteError and never returned as a program.
func Build(src *Program, m *Match, plan *Plan) (*Program, error) {
	b := &builder{
		src:  src,
		m:    m,
		bind: make(map[string]Var),
	}
	if len(src.vdefs) != 0 {
		b.next = src.maxVar + 1
	}
	if m != nil {
		for name, v := range m.Bind {
			b.bind[name] = v
		}
	}
	for i, step := range plan.Steps {
		var err error
		switch step := step.(type) {
		case Copy:
			err = b.copySpan(step, plan.Remap)
		case Emit:
			err = b.emit(step)
		default:
			err = fmt.Errorf("unknown step type %T", step)
		}
		if err != nil {
			return nil, &InvalidRewriteError{Reason: fmt.Sprintf("step #%v", i), Err: err}
		}
	}
	p, err := NewProgram(src.ops, b.out)
	if err != nil {
		return nil, &InvalidRewriteError{Reason: "rewritten program failed validation", Err: err}
	}
	return p, nil
}

// builder holds the state of one Build invocation.
type builder struct {
	src  *Program
	m    *Match
	out  []Instruction
	next Var
	bind map[string]Var
}

func (b *builder) copySpan(step Copy, remap map[Var]Var) error {
	if step.From < 0 || step.From > step.To || step.To > b.src.Len() {
		return fmt.Errorf("copy range [%v,%v) out of bounds", step.From, step.To)
	}
	for i := step.From; i < step.To; i++ {
		ins := b.src.insns[i].clone()
		for k, v := range ins.Inputs {
			ins.Inputs[k] = remapVar(v, remap)
		}
		for k, v := range ins.Outputs {
			ins.Outputs[k] = remapVar(v, remap)
		}
		b.out = append(b.out, ins)
	}
	return nil
}

func remapVar(v Var, remap map[Var]Var) Var {
	if nv, ok := remap[v]; ok {
		return nv
	}
	return v
}

func (b *builder) emit(step Emit) error {
	for _, tmpl := range step.Insns {
		op := b.src.ops.Lookup(tmpl.Op)
		if op == nil {
			return fmt.Errorf("emitted instruction has unknown opcode %v", tmpl.Op)
		}
		ins := Instruction{
			Op:   op,
			Val:  tmpl.Val,
			Name: tmpl.Name,
		}
		var err error
		if ins.Inputs, err = b.resolve(tmpl.In); err != nil {
			return fmt.Errorf("%v: %w", op.Name, err)
		}
		if ins.Outputs, err = b.resolve(tmpl.Out); err != nil {
			return fmt.Errorf("%v: %w", op.Name, err)
		}
		b.out = append(b.out, ins)
	}
	return nil
}

func (b *builder) resolve(operands []Operand) ([]Var, error) {
	if len(operands) == 0 {
		return nil, nil
	}
	vars := make([]Var, len(operands))
	for i, o := range operands {
		if o.Fresh {
			v := b.next
			b.next++
			if o.Ref != "" {
				if _, ok := b.bind[o.Ref]; ok {
					return nil, fmt.Errorf("fresh variable rebinds %q", o.Ref)
				}
				b.bind[o.Ref] = v
			}
			vars[i] = v
			continue
		}
		v, ok := b.bind[o.Ref]
		if !ok {
			return nil, fmt.Errorf("unbound operand reference %q", o.Ref)
		}
		vars[i] = v
	}
	return vars, nil
}

// PlanTemplate is the declarative form of the common rewrite: keep the
// program around the covered range and replace the covered range itself
// with emitted instructions. Instantiated per match.
type PlanTemplate struct {
	DropPrefix bool // do not copy [0, match.Start)
	DropSuffix bool // do not copy [match.End, len)
	Emit       []Template
}

// Plan instantiates the template against a concrete match.
func (t *PlanTemplate) Plan(m *Match) *Plan {
	plan := &Plan{}
	if !t.DropPrefix {
		plan.Steps = append(plan.Steps, Copy{0, m.Start})
	}
	if len(t.Emit) != 0 {
		plan.Steps = append(plan.Steps, Emit{Insns: t.Emit})
	}
	if !t.DropSuffix {
		plan.Steps = append(plan.Steps, Copy{m.End, m.Program.Len()})
	}
	return plan
}
