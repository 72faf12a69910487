// Copyright 2025 ilmut project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package il

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, text string) *Program {
	t.Helper()
	p, err := Deserialize([]byte(text), DefaultOps())
	require.NoError(t, err)
	return p
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		index int
		msg   string
	}{
		{
			name:  "close without open",
			text:  "EndWhile()",
			index: 0,
			msg:   "does not match an open",
		},
		{
			name:  "use before definition",
			text:  "Return(v0)",
			index: 0,
			msg:   "use of v0 before definition",
		},
		{
			name: "double definition",
			text: `
v0 = LoadInt(1)
v0 = LoadInt(2)
`,
			index: 1,
			msg:   "double definition of v0",
		},
		{
			name: "unclosed block",
			text: `
v0 = LoadBool(1)
BeginWhile(v0)
`,
			index: 1,
			msg:   "never closed",
		},
		{
			name: "mismatched block kinds",
			text: `
v0 = LoadBool(1)
BeginWhile(v0)
EndIf()
`,
			index: 2,
			msg:   "does not match an open",
		},
		{
			name: "use outside defining block",
			text: `
v0 = LoadBool(1)
BeginIf(v0)
  v1 = LoadInt(1)
EndIf()
Return(v1)
`,
			index: 4,
			msg:   "outside of its defining block",
		},
		{
			name: "wrong arity",
			text: `
v0 = LoadInt(1)
v1 = BinaryOp('+', v0)
`,
			index: 1,
			msg:   "wrong number of inputs",
		},
		{
			name:  "else without if",
			text:  "BeginElse()",
			index: 0,
			msg:   "does not match an open",
		},
		{
			name: "try body variable dead in catch",
			text: `
BeginTry()
  v0 = LoadInt(1)
v1 = BeginCatch()
  Return(v0)
EndTryCatch()
`,
			index: 3,
			msg:   "outside of its defining block",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Deserialize([]byte(test.text), DefaultOps())
			require.Error(t, err)
			var malformed *MalformedProgramError
			require.True(t, errors.As(err, &malformed), "want MalformedProgramError, got %v", err)
			assert.Equal(t, test.index, malformed.Index)
			assert.Contains(t, malformed.Reason, test.msg)
		})
	}
}

func TestValidPrograms(t *testing.T) {
	for _, text := range []string{
		"",
		"v0 = LoadInt(5)",
		`
v0 = LoadBool(1)
BeginIf(v0)
  v1 = LoadInt(1)
BeginElse()
  v2 = LoadInt(2)
EndIf()
`,
		`
BeginTry()
  v0 = LoadInt(1)
v1 = BeginCatch()
  Return(v1)
BeginFinally()
  v2 = LoadInt(2)
EndTryCatch()
`,
		`
v0, v1 = BeginFunction()
  Return(v1)
EndFunction()
v2 = CallFunction(v0)
`,
	} {
		_, err := Deserialize([]byte(text), DefaultOps())
		assert.NoError(t, err, "program:\n%s", text)
	}
}

func TestFunctionParamScope(t *testing.T) {
	// The function variable survives the block, the parameter does not.
	_, err := Deserialize([]byte(`
v0, v1 = BeginFunction()
EndFunction()
v2 = CallFunction(v0, v1)
`), DefaultOps())
	require.Error(t, err)
	var malformed *MalformedProgramError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, 2, malformed.Index)
	assert.Contains(t, malformed.Reason, "v1")
}

func TestBlockNavigation(t *testing.T) {
	p := mustParse(t, `
v0 = LoadBool(1)
BeginWhile(v0)
  BeginIf(v0)
    v1 = LoadInt(1)
  EndIf()
EndWhile()
`)
	assert.Equal(t, 5, p.MatchingClose(1))
	assert.Equal(t, 1, p.MatchingOpen(5))
	assert.Equal(t, 4, p.MatchingClose(2))
	assert.Equal(t, 2, p.MatchingOpen(4))

	assert.Equal(t, 0, p.Depth(0))
	assert.Equal(t, 0, p.Depth(1)) // open belongs to the enclosing scope
	assert.Equal(t, 1, p.Depth(2))
	assert.Equal(t, 2, p.Depth(3))
	assert.Equal(t, 1, p.Depth(4))
	assert.Equal(t, 0, p.Depth(5))

	assert.Panics(t, func() { p.MatchingClose(0) })
	assert.Panics(t, func() { p.MatchingOpen(1) })
}

func TestVariables(t *testing.T) {
	p := mustParse(t, `
v3 = LoadInt(1)
v0 = LoadInt(2)
v7 = BinaryOp('+', v3, v0)
`)
	assert.Equal(t, []Var{0, 3, 7}, p.Variables())
	assert.Equal(t, "LoadInt-LoadInt-BinaryOp", p.String())
}
