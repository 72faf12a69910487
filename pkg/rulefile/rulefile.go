// Copyright 2025 ilmut project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package rulefile loads declarative rewrite rules from YAML. A rule file
// is the data-driven form of a (pattern, emission plan) pair:
//
//	rules:
//	  - name: fold-equal-int-add
//	    match:
//	      - {op: LoadInt, label: a, out: [x]}
//	      - {op: LoadInt, label: b, valref: a, out: [y]}
//	      - {op: BinaryOp, name: "+", in: [x, y], out: [sum]}
//	    replace:
//	      - {op: LoadInt, val: 10, out: [sum]}
package rulefile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ilmut/ilmut/il"
	"github.com/ilmut/ilmut/pkg/mutator"
)

type File struct {
	Rules []RuleDef `yaml:"rules"`
}

type RuleDef struct {
	Name       string     `yaml:"name"`
	SameScope  bool       `yaml:"samescope"`
	Match      []ShapeDef `yaml:"match"`
	Replace    []InsnDef  `yaml:"replace"`
	DropPrefix bool       `yaml:"drop_prefix"`
	DropSuffix bool       `yaml:"drop_suffix"`
}

// ShapeDef mirrors il.Shape. Operand references use the same mini-language
// ("x" binds or requires equality, "!x" requires inequality); "_" and ""
// both mean an unconstrained slot. An empty op matches any operation.
type ShapeDef struct {
	Op     string     `yaml:"op"`
	Label  string     `yaml:"label"`
	MaxGap *int       `yaml:"maxgap"`
	In     []string   `yaml:"in"`
	Out    []string   `yaml:"out"`
	Val    *uint64    `yaml:"val"`
	ValRef string     `yaml:"valref"`
	Name   string     `yaml:"name"`
	Sub    []ShapeDef `yaml:"sub"`
}

// InsnDef describes one emitted instruction. Output references prefixed
// with "+" allocate fresh variables; all other references must be bound by
// the match or by an earlier emitted instruction.
type InsnDef struct {
	Op   string   `yaml:"op"`
	Val  uint64   `yaml:"val"`
	Name string   `yaml:"name"`
	In   []string `yaml:"in"`
	Out  []string `yaml:"out"`
}

// LoadFile reads and compiles a YAML rule file.
func LoadFile(path string, ops *il.OpSet) ([]*mutator.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rules, err := Load(data, ops)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}
	return rules, nil
}

// Load compiles YAML rule definitions into validated mutator rules.
func Load(data []byte, ops *il.OpSet) ([]*mutator.Rule, error) {
	var file File
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rule file defines no rules")
	}
	var rules []*mutator.Rule
	for i, def := range file.Rules {
		rule, err := compileRule(&def, ops)
		if err != nil {
			return nil, fmt.Errorf("rule #%v (%q): %w", i, def.Name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func compileRule(def *RuleDef, ops *il.OpSet) (*mutator.Rule, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	pat, err := compilePattern(def.Name, def.SameScope, def.Match, ops)
	if err != nil {
		return nil, err
	}
	if err := pat.Validate(ops); err != nil {
		return nil, err
	}
	plan := &il.PlanTemplate{
		DropPrefix: def.DropPrefix,
		DropSuffix: def.DropSuffix,
	}
	for i, insn := range def.Replace {
		tmpl, err := compileInsn(&insn, ops)
		if err != nil {
			return nil, fmt.Errorf("replace #%v: %w", i, err)
		}
		plan.Emit = append(plan.Emit, tmpl)
	}
	return &mutator.Rule{Name: def.Name, Pattern: pat, Plan: plan}, nil
}

func compilePattern(name string, sameScope bool, defs []ShapeDef, ops *il.OpSet) (*il.Pattern, error) {
	pat := &il.Pattern{Name: name, SameScope: sameScope}
	for i, def := range defs {
		shape, err := compileShape(&def, ops)
		if err != nil {
			return nil, fmt.Errorf("match #%v: %w", i, err)
		}
		pat.Shapes = append(pat.Shapes, shape)
	}
	return pat, nil
}

func compileShape(def *ShapeDef, ops *il.OpSet) (*il.Shape, error) {
	shape := &il.Shape{
		Label:  def.Label,
		In:     slots(def.In),
		Out:    slots(def.Out),
		Val:    def.Val,
		ValRef: def.ValRef,
		Name:   def.Name,
	}
	if def.Op != "" {
		op := ops.LookupName(def.Op)
		if op == nil {
			return nil, fmt.Errorf("unknown operation %q", def.Op)
		}
		shape.Op = op.Code
	}
	if def.MaxGap != nil {
		shape.MaxGap = *def.MaxGap
	}
	if len(def.Sub) != 0 {
		sub, err := compilePattern("", false, def.Sub, ops)
		if err != nil {
			return nil, err
		}
		shape.Sub = sub
	}
	return shape, nil
}

func compileInsn(def *InsnDef, ops *il.OpSet) (il.Template, error) {
	var tmpl il.Template
	op := ops.LookupName(def.Op)
	if op == nil {
		return tmpl, fmt.Errorf("unknown operation %q", def.Op)
	}
	tmpl = il.Template{
		Op:   op.Code,
		Val:  def.Val,
		Name: def.Name,
	}
	for _, ref := range def.In {
		if strings.HasPrefix(ref, "+") {
			return tmpl, fmt.Errorf("fresh variable %q cannot be an input", ref)
		}
		tmpl.In = append(tmpl.In, il.Bound(ref))
	}
	for _, ref := range def.Out {
		if name, ok := strings.CutPrefix(ref, "+"); ok {
			tmpl.Out = append(tmpl.Out, il.Fresh(name))
		} else {
			tmpl.Out = append(tmpl.Out, il.Bound(ref))
		}
	}
	return tmpl, nil
}

func slots(refs []string) []string {
	if len(refs) == 0 {
		return nil
	}
	res := make([]string, len(refs))
	for i, ref := range refs {
		if ref == "_" {
			ref = ""
		}
		res[i] = ref
	}
	return res
}
