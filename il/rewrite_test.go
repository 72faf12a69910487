// Copyright 2025 ilmut project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package il

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRoundTripNoop(t *testing.T) {
	// Copying everything verbatim yields an instruction-for-instruction
	// identical program.
	for _, text := range []string{
		foldAddProgText,
		`
v0 = LoadBool(1)
BeginWhile(v0)
  v1 = LoadInt(1)
  BeginIf(v0)
    v2 = BinaryOp('+', v1, v1)
  EndIf()
EndWhile()
`,
	} {
		p := mustParse(t, text)
		plan := &Plan{Steps: []Step{Copy{0, p.Len()}}}
		p2, err := Build(p, nil, plan)
		require.NoError(t, err)
		assert.Equal(t, string(p.Serialize()), string(p2.Serialize()))
	}
}

func TestBuildReplaceExample(t *testing.T) {
	// Replace the covered range with a single LoadInt bound to the
	// original result's identity; the trailing use stays valid untouched.
	p := mustParse(t, foldAddProgText)
	pat := foldAddPattern()
	require.NoError(t, pat.Validate(DefaultOps()))
	m := pat.Match(p)
	require.NotNil(t, m)

	tmpl := &PlanTemplate{
		Emit: []Template{
			{Op: LoadInt, Val: 10, Out: []Operand{Bound("sum")}},
		},
	}
	p2, err := Build(p, m, tmpl.Plan(m))
	require.NoError(t, err)
	assert.Equal(t, "v2 = LoadInt(10)\nReturn(v2)\n", string(p2.Serialize()))

	// The source program is unchanged.
	assert.Equal(t, 4, p.Len())
}

func TestBuildFreshVariables(t *testing.T) {
	p := mustParse(t, `
v0 = LoadInt(5)
Return(v0)
`)
	pat := &Pattern{
		Name: "ret",
		Shapes: []*Shape{
			{Op: Return, MaxGap: -1, In: []string{"x"}},
		},
	}
	require.NoError(t, pat.Validate(DefaultOps()))
	m := pat.Match(p)
	require.NotNil(t, m)

	tmpl := &PlanTemplate{
		Emit: []Template{
			{Op: LoadInt, Val: 1, Out: []Operand{Fresh("one")}},
			{Op: BinaryOp, Name: "+", In: []Operand{Bound("x"), Bound("one")}, Out: []Operand{Fresh("sum")}},
			{Op: Return, In: []Operand{Bound("sum")}},
		},
	}
	p2, err := Build(p, m, tmpl.Plan(m))
	require.NoError(t, err)
	// Fresh variables do not collide with any existing variable.
	assert.Equal(t, `v0 = LoadInt(5)
v1 = LoadInt(1)
v2 = BinaryOp('+', v0, v1)
Return(v2)
`, string(p2.Serialize()))
}

func TestBuildInvalidRewrite(t *testing.T) {
	// Deleting a definition while keeping its use must be rejected with
	// InvalidRewrite; the broken program is never returned.
	p := mustParse(t, `
v0 = LoadInt(5)
Return(v0)
`)
	pat := &Pattern{
		Name:   "load",
		Shapes: []*Shape{{Op: LoadInt, Out: []string{"x"}}},
	}
	require.NoError(t, pat.Validate(DefaultOps()))
	m := pat.Match(p)
	require.NotNil(t, m)

	p2, err := Build(p, m, (&PlanTemplate{}).Plan(m))
	assert.Nil(t, p2)
	var invalid *InvalidRewriteError
	require.True(t, errors.As(err, &invalid), "got %v", err)
	var malformed *MalformedProgramError
	require.True(t, errors.As(err, &malformed))
	assert.Contains(t, malformed.Reason, "v0")
}

func TestBuildUnboundReference(t *testing.T) {
	p := mustParse(t, "v0 = LoadInt(5)")
	plan := &Plan{Steps: []Step{
		Emit{Insns: []Template{
			{Op: Return, In: []Operand{Bound("nope")}},
		}},
	}}
	p2, err := Build(p, nil, plan)
	assert.Nil(t, p2)
	var invalid *InvalidRewriteError
	require.True(t, errors.As(err, &invalid))
	assert.Contains(t, err.Error(), "nope")
}

func TestBuildBadCopyRange(t *testing.T) {
	p := mustParse(t, "v0 = LoadInt(5)")
	for _, step := range []Copy{{-1, 1}, {0, 2}, {1, 0}} {
		_, err := Build(p, nil, &Plan{Steps: []Step{step}})
		var invalid *InvalidRewriteError
		require.True(t, errors.As(err, &invalid), "range [%v,%v)", step.From, step.To)
	}
}

func TestBuildRemap(t *testing.T) {
	p := mustParse(t, `
v0 = LoadInt(1)
Return(v0)
`)
	plan := &Plan{
		Steps: []Step{Copy{0, p.Len()}},
		Remap: map[Var]Var{0: 5},
	}
	p2, err := Build(p, nil, plan)
	require.NoError(t, err)
	assert.Equal(t, "v5 = LoadInt(1)\nReturn(v5)\n", string(p2.Serialize()))
}
