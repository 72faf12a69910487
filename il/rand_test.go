// Copyright 2025 ilmut project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package il

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ilmut/ilmut/pkg/testutil"
)

// randProgram generates a random well-formed program. Variables defined
// inside a block are only used while the block is open.
func randProgram(rnd *rand.Rand, ops *OpSet) *Program {
	var insns []Instruction
	var next Var
	frames := [][]Var{nil}
	visible := func() []Var {
		var res []Var
		for _, f := range frames {
			res = append(res, f...)
		}
		return res
	}
	def := func() Var {
		v := next
		next++
		frames[len(frames)-1] = append(frames[len(frames)-1], v)
		return v
	}
	size := 1 + rnd.Intn(20)
	for len(insns) < size || len(frames) > 1 {
		vars := visible()
		switch n := rnd.Intn(10); {
		case len(insns) >= size || n == 0:
			if len(frames) > 1 {
				frames = frames[:len(frames)-1]
				insns = append(insns, Instruction{Op: ops.Lookup(EndIf)})
				continue
			}
			fallthrough
		case n < 4:
			insns = append(insns, Instruction{
				Op:      ops.Lookup(LoadInt),
				Val:     uint64(rnd.Intn(100)),
				Outputs: []Var{def()},
			})
		case n < 6:
			insns = append(insns, Instruction{Op: ops.Lookup(Nop)})
		case n < 8 && len(vars) >= 2:
			in := []Var{vars[rnd.Intn(len(vars))], vars[rnd.Intn(len(vars))]}
			insns = append(insns, Instruction{
				Op:      ops.Lookup(BinaryOp),
				Name:    "+",
				Inputs:  in,
				Outputs: []Var{def()},
			})
		case len(vars) >= 1 && len(frames) < 4:
			insns = append(insns, Instruction{
				Op:     ops.Lookup(BeginIf),
				Inputs: []Var{vars[rnd.Intn(len(vars))]},
			})
			frames = append(frames, nil)
		}
	}
	p, err := NewProgram(ops, insns)
	if err != nil {
		panic(err)
	}
	return p
}

func TestRandomRoundTrip(t *testing.T) {
	ops := DefaultOps()
	rnd := rand.New(testutil.RandSource(t))
	for i := 0; i < testutil.IterCount(); i++ {
		p := randProgram(rnd, ops)
		data := p.Serialize()
		got, err := Deserialize(data, ops)
		require.NoError(t, err, "%s", data)
		if diff := cmp.Diff(string(data), string(got.Serialize())); diff != "" {
			t.Fatalf("round trip changed the program (-orig +got):\n%s", diff)
		}
	}
}

func TestRandomDefUse(t *testing.T) {
	ops := DefaultOps()
	rnd := rand.New(testutil.RandSource(t))
	for i := 0; i < testutil.IterCount(); i++ {
		p := randProgram(rnd, ops)
		du := p.DefUse()
		for _, v := range p.Variables() {
			def, err := du.DefinitionOf(v)
			require.NoError(t, err)
			uses, err := du.UsesOf(v)
			require.NoError(t, err)
			for _, u := range uses {
				require.Greater(t, u, def, "use of v%v before its definition", v)
			}
		}
	}
}
